package indices

import (
	"casework/client/es"
	"casework/session"
	"encoding/json"
)

const searchLimit = 200

type SearchQuery struct {
	Term   string `form:"q"`
	Status string `form:"status" binding:"omitempty,oneof=draft active completed aborted"`
}

var SearchInstancesFunc = SearchInstances

// SearchInstances runs a full-text search over name, case number, template, notes and step names.
func SearchInstances(q SearchQuery, s *session.Session) ([]InstanceDocument, error) {
	filters := make([]es.H, 0, 2)
	if q.Term != "" {
		filters = append(filters, es.H{"multi_match": es.H{
			"query":    q.Term,
			"fields":   []string{"name", "caseNumber", "templateName", "notes", "steps.name"},
			"operator": "AND",
		}})
	}
	if q.Status != "" {
		filters = append(filters, es.H{"term": es.H{"status": q.Status}})
	}

	query := es.H{
		"size":  searchLimit,
		"query": es.H{"bool": es.H{"filter": filters}},
		"sort":  []es.H{{"createTime": es.H{"order": "desc"}}},
	}
	r, err := es.SearchFunc(s.Context, InstanceIndexName, query)
	if err != nil {
		return nil, err
	}
	docs := make([]InstanceDocument, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		doc := InstanceDocument{}
		if err := json.Unmarshal([]byte(hit.Source), &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
