package notion

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/forkline/expansion-cli/internal/model"
)

// PublishRun writes a run summary page to the review database, updating
// the existing page when one already exists for the run ID. It returns
// the page ID.
func PublishRun(ctx context.Context, c Client, dbID string, run *model.Run, candidates []model.Candidate) (string, error) {
	existingID, err := findRunPage(ctx, c, dbID, run.ID)
	if err != nil {
		return "", err
	}

	props := runProperties(run)

	if existingID != "" {
		page, err := c.UpdatePage(ctx, existingID, &notionapi.PageUpdateRequest{Properties: props})
		if err != nil {
			return "", eris.Wrapf(err, "notion: update run page %s", existingID)
		}
		return string(page.ID), nil
	}

	page, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
		Children:   candidateBlocks(candidates),
	})
	if err != nil {
		return "", eris.Wrap(err, "notion: create run page")
	}
	return string(page.ID), nil
}

// findRunPage looks up the page for a run ID. Empty string means no page
// exists yet.
func findRunPage(ctx context.Context, c Client, dbID, runID string) (string, error) {
	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Run ID",
			RichText: &notionapi.TextFilterCondition{Equals: runID},
		},
		PageSize: 1,
	})
	if err != nil {
		return "", eris.Wrap(err, "notion: find run page")
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}

func runProperties(run *model.Run) notionapi.Properties {
	now := notionapi.Date(time.Now())
	props := notionapi.Properties{
		"Region": notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: run.Region.Name}},
			},
		},
		"Run ID": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: run.ID}},
			},
		},
		"Status": notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(run.Status)},
		},
		"Last Updated": notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &now},
		},
	}

	if run.Result != nil {
		props["Candidates"] = notionapi.NumberProperty{Number: float64(run.Result.CandidatesFound)}
		props["Viable"] = notionapi.NumberProperty{Number: float64(run.Result.CandidatesViable)}
		props["Cost USD"] = notionapi.NumberProperty{Number: run.Result.CostUSD}
	}
	return props
}

// candidateBlocks renders the surviving candidates as a bulleted list,
// strongest verdict first in input order.
func candidateBlocks(candidates []model.Candidate) []notionapi.Block {
	blocks := []notionapi.Block{
		notionapi.Heading2Block{
			BasicBlock: notionapi.BasicBlock{
				Object: notionapi.ObjectTypeBlock,
				Type:   notionapi.BlockTypeHeading2,
			},
			Heading2: notionapi.Heading{
				RichText: []notionapi.RichText{
					{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: "Candidates"}},
				},
			},
		},
	}

	for _, c := range candidates {
		if c.Filtered || c.Verdict == nil {
			continue
		}
		line := fmt.Sprintf("%s — %s", c.Name, c.Verdict.Verdict)
		if c.Score != nil {
			line = fmt.Sprintf("%s — %s (composite %.2f)", c.Name, c.Verdict.Verdict, c.Score.Composite)
		}
		blocks = append(blocks, notionapi.BulletedListItemBlock{
			BasicBlock: notionapi.BasicBlock{
				Object: notionapi.ObjectTypeBlock,
				Type:   notionapi.BlockTypeBulletedListItem,
			},
			BulletedListItem: notionapi.ListItem{
				RichText: []notionapi.RichText{
					{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: line}},
				},
			},
		})
	}
	return blocks
}
