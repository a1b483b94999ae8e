package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"comunidad-service/internal/client"
	"comunidad-service/internal/models"
	"comunidad-service/internal/util"
)

const accountsIndex = "comunidad-accounts"

// AccountDocument is the searchable projection of an account. Contact
// identifiers never reach the index; admins search by company fields,
// project and status.
type AccountDocument struct {
	UserID      string `json:"user_id"`
	UserType    string `json:"user_type"`
	Status      string `json:"status"`
	CompanyName string `json:"company_name,omitempty"`
	CompanyRUC  string `json:"company_ruc,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// Indexer maintains the admin search index in Elasticsearch.
type Indexer struct {
	client *client.ESClient
}

func NewIndexer(esClient *client.ESClient) *Indexer {
	return &Indexer{client: esClient}
}

// IndexAccount writes or rewrites one account document. Best effort: index
// lag is acceptable, the store stays authoritative.
func (i *Indexer) IndexAccount(ctx context.Context, account *models.Account) error {
	doc := AccountDocument{
		UserID:      account.UserID.String(),
		UserType:    string(account.UserType),
		Status:      string(account.Status),
		CompanyName: account.CompanyName,
		CompanyRUC:  account.CompanyRUC,
		ProjectID:   account.ProjectID,
		CreatedAt:   account.CreatedAt.UTC().Format(time.RFC3339),
	}

	res, err := i.client.IndexDocument(accountsIndex, doc.UserID, doc)
	if err != nil {
		return fmt.Errorf("failed to index account: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index account: %s", res.String())
	}

	util.Debug("Account indexed",
		zap.String("user_id", doc.UserID),
		zap.String("status", doc.Status))
	return nil
}

// SearchAccounts runs an admin free-text query over company name, RUC and
// project.
func (i *Indexer) SearchAccounts(ctx context.Context, query string, limit int) ([]AccountDocument, error) {
	if limit <= 0 {
		limit = 25
	}

	esQuery := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"company_name^2", "company_ruc", "project_id", "status"},
			},
		},
	}

	res, err := i.client.Search(ctx, accountsIndex, esQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to search accounts: %w", err)
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source AccountDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := i.client.ParseResponse(res, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	docs := make([]AccountDocument, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		docs = append(docs, hit.Source)
	}
	return docs, nil
}
