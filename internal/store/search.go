package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/wesm/open-issue-finder/internal/models"
)

// savedIndex is an in-memory full-text index over saved issues
type savedIndex struct {
	idx bleve.Index
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = standard.Name
	title.IncludeTermVectors = true

	body := bleve.NewTextFieldMapping()
	body.Analyzer = standard.Name
	body.Store = false

	repo := bleve.NewTextFieldMapping()
	repo.Analyzer = standard.Name

	labels := bleve.NewTextFieldMapping()
	labels.Analyzer = standard.Name

	author := bleve.NewTextFieldMapping()
	author.Analyzer = standard.Name

	dm.AddFieldMappingsAt("title", title)
	dm.AddFieldMappingsAt("body", body)
	dm.AddFieldMappingsAt("repo", repo)
	dm.AddFieldMappingsAt("labels", labels)
	dm.AddFieldMappingsAt("author", author)

	im.DefaultMapping = dm
	return im
}

func newSavedIndex(issues []models.SavedIssue) (*savedIndex, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, err
	}

	batch := idx.NewBatch()
	for _, issue := range issues {
		if err := batch.Index(docID(issue.ID), document(issue)); err != nil {
			return nil, err
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, err
	}
	return &savedIndex{idx: idx}, nil
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func document(issue models.SavedIssue) map[string]any {
	names := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		names = append(names, l.Name)
	}
	// "acme/widgets" should match both "acme" and "widgets"
	repo := strings.ReplaceAll(issue.RepoFullName(), "/", " ")

	return map[string]any{
		"title":  issue.Title,
		"body":   issue.BodyText(),
		"repo":   repo,
		"labels": strings.Join(names, " "),
		"author": issue.AuthorLogin(),
	}
}

// add and remove keep the index in step with the saved list. Index failures
// only degrade search, so they are not returned.
func (s *savedIndex) add(issue models.SavedIssue) {
	_ = s.idx.Index(docID(issue.ID), document(issue))
}

func (s *savedIndex) remove(id int64) {
	_ = s.idx.Delete(docID(id))
}

func (s *savedIndex) search(text string, limit int) ([]int64, error) {
	q := bleve.NewMatchQuery(text)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)

	res, err := s.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search saved issues: %w", err)
	}

	ids := make([]int64, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *savedIndex) close() error {
	return s.idx.Close()
}
