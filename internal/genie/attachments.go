package genie

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// AttachmentKind discriminates the two payloads a completed message carries.
type AttachmentKind int

const (
	// AttachmentUnknown marks an attachment the service sent in a shape we
	// don't recognize. Renderers skip these.
	AttachmentUnknown AttachmentKind = iota
	AttachmentText
	AttachmentQuery
)

// Attachment is one piece of a completed message: either free text or a
// generated SQL query whose tabular result is fetched separately. The kind
// is decided once when the message is decoded; attachment order matches the
// service response.
type Attachment struct {
	Kind AttachmentKind

	// Text payload.
	Content string

	// Query payload.
	SQL          string
	Description  string
	AttachmentID string
}

func (a *Attachment) UnmarshalJSON(data []byte) error {
	var raw struct {
		AttachmentID string `json:"attachment_id"`
		Text         *struct {
			Content string `json:"content"`
		} `json:"text"`
		Query *struct {
			Query       string `json:"query"`
			Description string `json:"description"`
		} `json:"query"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch {
	case raw.Text != nil:
		*a = Attachment{Kind: AttachmentText, Content: raw.Text.Content}
	case raw.Query != nil:
		*a = Attachment{
			Kind:         AttachmentQuery,
			SQL:          raw.Query.Query,
			Description:  raw.Query.Description,
			AttachmentID: raw.AttachmentID,
		}
	default:
		*a = Attachment{Kind: AttachmentUnknown}
	}
	return nil
}

// QueryResult is the tabular outcome of a query attachment: column names
// plus a rectangular array of row values.
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

// FetchQueryResult fetches the table behind one query attachment. A response
// missing the expected statement_response structure yields a
// *MalformedResultError instead of a decode panic or raw error, so the
// caller can keep the session alive and render "no data". Results are never
// cached; each call hits the service.
func (c *Client) FetchQueryResult(ctx context.Context, spaceID, conversationID, messageID, attachmentID string) (*QueryResult, error) {
	var payload struct {
		StatementResponse *struct {
			Manifest *struct {
				Schema *struct {
					Columns []struct {
						Name string `json:"name"`
					} `json:"columns"`
				} `json:"schema"`
			} `json:"manifest"`
			Result *struct {
				DataArray [][]any `json:"data_array"`
			} `json:"result"`
		} `json:"statement_response"`
	}

	path := fmt.Sprintf("/spaces/%s/conversations/%s/messages/%s/query-result/%s",
		spaceID, conversationID, messageID, attachmentID)
	if err := c.do(ctx, "GET", path, nil, &payload); err != nil {
		return nil, err
	}

	sr := payload.StatementResponse
	switch {
	case sr == nil:
		return nil, &MalformedResultError{Reason: "missing statement_response"}
	case sr.Manifest == nil || sr.Manifest.Schema == nil:
		return nil, &MalformedResultError{Reason: "missing statement_response.manifest.schema"}
	case sr.Result == nil:
		return nil, &MalformedResultError{Reason: "missing statement_response.result"}
	case sr.Result.DataArray == nil:
		return nil, &MalformedResultError{Reason: "missing statement_response.result.data_array"}
	}

	columns := make([]string, len(sr.Manifest.Schema.Columns))
	for i, col := range sr.Manifest.Schema.Columns {
		columns[i] = col.Name
	}
	return &QueryResult{Columns: columns, Rows: sr.Result.DataArray}, nil
}

// AttachmentResult pairs an attachment with its fetched table. Result is nil
// for text attachments and for query attachments whose result came back
// malformed (Err holds the *MalformedResultError in that case).
type AttachmentResult struct {
	Attachment Attachment
	Result     *QueryResult
	Err        error
}

// fetchConcurrency bounds the parallel query-result fetches per message.
const fetchConcurrency = 4

// FetchResults resolves every query attachment of a completed message,
// fetching their tables concurrently while preserving attachment order in
// the returned slice. Transport failures abort the whole fetch; malformed
// results are recorded per attachment and do not.
func (c *Client) FetchResults(ctx context.Context, spaceID string, msg *Message) ([]AttachmentResult, error) {
	results := make([]AttachmentResult, len(msg.Attachments))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	for i, att := range msg.Attachments {
		results[i].Attachment = att
		if att.Kind != AttachmentQuery {
			continue
		}
		g.Go(func() error {
			qr, err := c.FetchQueryResult(gCtx, spaceID, msg.ConversationID, msg.ID, att.AttachmentID)
			var malformed *MalformedResultError
			if errors.As(err, &malformed) {
				results[i].Err = err
				return nil
			}
			if err != nil {
				return err
			}
			results[i].Result = qr
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
