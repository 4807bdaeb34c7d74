package notion

import (
	"context"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// usd renders dollar amounts with thousands separators so page text
// matches what the CLI prints.
var usd = message.NewPrinter(language.English)

// ForecastPage is the payload published to a Notion forecast database.
// Amounts are plain floats; formatting happens at render time.
type ForecastPage struct {
	Title            string
	PeriodLabel      string
	GeneratedAt      time.Time
	TotalDeals       int
	StaleDeals       int
	TotalPipeline    float64
	WeightedPipeline float64
	ClosedWon        float64
	Pessimistic      float64
	Likely           float64
	Optimistic       float64
	HighConfidence   int
	MediumConfidence int
	LowConfidence    int
	Narrative        string
	Reps             []RepRow
}

// RepRow is one leaderboard entry on the published page. Rows render in
// slice order, so callers pass them pre-ranked.
type RepRow struct {
	Name              string
	OpenDeals         int
	PipelineValue     float64
	WonValue          float64
	WinRate           float64 // percent, 0-100
	ForecastedRevenue float64
	Score             int
}

// PublishForecast writes page into the given database and returns the
// created page ID. Any live page carrying the same period label is
// archived first, so the database keeps exactly one page per forecast
// window and re-running a publish replaces rather than duplicates.
func PublishForecast(ctx context.Context, c Client, dbID string, page ForecastPage) (string, error) {
	if page.Title == "" {
		return "", eris.New("notion: forecast page needs a title")
	}
	if page.PeriodLabel == "" {
		return "", eris.New("notion: forecast page needs a period label")
	}

	stale, err := FindForecastPages(ctx, c, dbID, page.PeriodLabel)
	if err != nil {
		return "", err
	}
	for _, p := range stale {
		if _, err := c.UpdatePage(ctx, string(p.ID), &notionapi.PageUpdateRequest{
			Properties: notionapi.Properties{},
			Archived:   true,
		}); err != nil {
			return "", eris.Wrap(err, "notion: archive stale forecast page")
		}
	}

	created, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: buildForecastProperties(page),
		Children:   buildForecastChildren(page),
	})
	if err != nil {
		return "", eris.Wrap(err, "notion: publish forecast page")
	}

	zap.L().Info("notion: published forecast page",
		zap.String("page_id", string(created.ID)),
		zap.String("period", page.PeriodLabel),
		zap.Int("reps", len(page.Reps)),
		zap.Int("archived", len(stale)))

	return string(created.ID), nil
}

// buildForecastProperties maps the summary numbers onto database columns.
// Property names must match the target database schema; Notion rejects
// unknown ones.
func buildForecastProperties(page ForecastPage) notionapi.Properties {
	generated := notionapi.Date(page.GeneratedAt)

	return notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(page.Title),
		},
		"Period": notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(page.PeriodLabel),
		},
		"Generated": notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &generated},
		},
		"Deals":       numberProp(float64(page.TotalDeals)),
		"Stale Deals": numberProp(float64(page.StaleDeals)),
		"Pipeline":    numberProp(page.TotalPipeline),
		"Weighted":    numberProp(page.WeightedPipeline),
		"Closed Won":  numberProp(page.ClosedWon),
		"Pessimistic": numberProp(page.Pessimistic),
		"Likely":      numberProp(page.Likely),
		"Optimistic":  numberProp(page.Optimistic),
		"High Conf":   numberProp(float64(page.HighConfidence)),
		"Medium Conf": numberProp(float64(page.MediumConfidence)),
		"Low Conf":    numberProp(float64(page.LowConfidence)),
	}
}

// buildForecastChildren renders the page body: commentary paragraphs when
// a narrative is present, then the rep leaderboard.
func buildForecastChildren(page ForecastPage) []notionapi.Block {
	var blocks []notionapi.Block

	if page.Narrative != "" {
		blocks = append(blocks, heading2("Commentary"))
		for _, para := range strings.Split(page.Narrative, "\n\n") {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}
			blocks = append(blocks, paragraph(para))
		}
	}

	if len(page.Reps) > 0 {
		blocks = append(blocks, heading2("Rep leaderboard"))
		for _, rep := range page.Reps {
			blocks = append(blocks, bullet(repLine(rep)))
		}
	}

	return blocks
}

// repLine formats one leaderboard bullet.
func repLine(r RepRow) string {
	return usd.Sprintf("%s: $%.0f forecasted, %d open deals ($%.0f pipeline), %.0f%% win rate, score %d",
		r.Name, r.ForecastedRevenue, r.OpenDeals, r.PipelineValue, r.WinRate, r.Score)
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: content},
		},
	}
}

func numberProp(v float64) notionapi.NumberProperty {
	return notionapi.NumberProperty{
		Type:   notionapi.PropertyTypeNumber,
		Number: v,
	}
}

func heading2(text string) notionapi.Block {
	return notionapi.Heading2Block{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeHeading2,
		},
		Heading2: notionapi.Heading{RichText: richText(text)},
	}
}

func paragraph(text string) notionapi.Block {
	return notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeParagraph,
		},
		Paragraph: notionapi.Paragraph{RichText: richText(text)},
	}
}

func bullet(text string) notionapi.Block {
	return notionapi.BulletedListItemBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeBulletedListItem,
		},
		BulletedListItem: notionapi.ListItem{RichText: richText(text)},
	}
}
