// Package files adapts Drive into the assistant's domain contract. Free
// text is compiled into a Drive query expression: mime-type keywords map
// to mimeType clauses, date phrases become modifiedTime bounds, and
// trashed files are always excluded.
package files

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/mohammad-safakhou/workmate/internal/assistant"
	"github.com/mohammad-safakhou/workmate/internal/backends/google"
	"github.com/mohammad-safakhou/workmate/internal/cascade"
	"github.com/mohammad-safakhou/workmate/internal/domains"
	"github.com/mohammad-safakhou/workmate/internal/vectorindex"
)

// DriveAPI is the slice of the Drive client the adapter needs.
type DriveAPI interface {
	ListFiles(ctx context.Context, owner, queryExpr string, maxResults int) ([]google.File, error)
	GetFile(ctx context.Context, owner, id string) (google.File, error)
	CreateFile(ctx context.Context, owner string, file google.File) (google.File, error)
	RenameFile(ctx context.Context, owner, id, name string) (google.File, error)
	MoveFile(ctx context.Context, owner, id, folderID string) (google.File, error)
	TrashFile(ctx context.Context, owner, id string) error
	ShareFile(ctx context.Context, owner, id, email, role string) (google.Permission, error)
}

// Adapter handles file-domain requests.
type Adapter struct {
	api        DriveAPI
	search     *cascade.Cascade
	runner     *domains.Runner
	maxResults int
	now        func() time.Time
	logger     *log.Logger
}

// New builds the files adapter with its search cascade.
func New(api DriveAPI, embedder cascade.Embedder, index vectorindex.Index, tiers cascade.TierRecorder, runner *domains.Runner, reindexOnRead bool, maxResults int) *Adapter {
	if maxResults <= 0 {
		maxResults = 10
	}
	a := &Adapter{
		api:        api,
		runner:     runner,
		maxResults: maxResults,
		now:        time.Now,
		logger:     log.New(log.Writer(), "[FILES] ", log.LstdFlags),
	}
	a.search = cascade.New(cascade.Options{
		ItemType: "file",
		Authoritative: func(ctx context.Context, owner, query string, limit int) ([]map[string]interface{}, error) {
			expr := a.buildQueryExpr(query)
			fileList, err := api.ListFiles(ctx, owner, expr, limit)
			if err != nil {
				return nil, err
			}
			items := make([]map[string]interface{}, 0, len(fileList))
			for _, f := range fileList {
				items = append(items, normalizeFile(f))
			}
			return items, nil
		},
		EmbedText: func(item map[string]interface{}) string {
			name, _ := item["name"].(string)
			return name
		},
		SourceID: func(item map[string]interface{}) string {
			id, _ := item["id"].(string)
			return id
		},
		Embedder:      embedder,
		Index:         index,
		ReindexOnRead: reindexOnRead,
		Tiers:         tiers,
	})
	return a
}

// mimeKeywords maps query words to Drive mime types.
var mimeKeywords = []struct {
	keywords []string
	mimeType string
}{
	{[]string{"spreadsheet", "spreadsheets", "sheet", "sheets"}, "application/vnd.google-apps.spreadsheet"},
	{[]string{"document", "documents", "doc", "docs"}, "application/vnd.google-apps.document"},
	{[]string{"presentation", "presentations", "slide", "slides"}, "application/vnd.google-apps.presentation"},
	{[]string{"folder", "folders"}, "application/vnd.google-apps.folder"},
	{[]string{"pdf", "pdfs"}, "application/pdf"},
	{[]string{"image", "images", "photo", "photos", "picture", "pictures"}, "image/"},
}

var datePhrasePattern = regexp.MustCompile(`(?i)\b(today|yesterday|this week|last week|this month|last month)\b`)

// modifiedTimeExprPattern matches literal modifiedTime comparisons embedded
// in free text, e.g. "modifiedTime >= '2026-01-01T00:00:00'".
var modifiedTimeExprPattern = regexp.MustCompile(`(?i)modifiedTime\s*(>=|<=)\s*'([^']+)'`)

// buildQueryExpr compiles free text into a Drive v3 query expression.
func (a *Adapter) buildQueryExpr(query string) string {
	clauses := []string{"trashed = false"}
	remaining := query

	if mime := detectMimeType(query); mime != "" {
		if strings.HasSuffix(mime, "/") {
			clauses = append(clauses, fmt.Sprintf("mimeType contains '%s'", strings.TrimSuffix(mime, "/")))
		} else {
			clauses = append(clauses, fmt.Sprintf("mimeType = '%s'", mime))
		}
	}

	for _, m := range modifiedTimeExprPattern.FindAllStringSubmatch(remaining, -1) {
		clauses = append(clauses, fmt.Sprintf("modifiedTime %s '%s'", m[1], m[2]))
	}
	remaining = modifiedTimeExprPattern.ReplaceAllString(remaining, " ")

	if match := datePhrasePattern.FindString(remaining); match != "" {
		if bound := a.modifiedTimeBound(match); bound != "" {
			clauses = append(clauses, fmt.Sprintf("modifiedTime > '%s'", bound))
		}
		remaining = datePhrasePattern.ReplaceAllString(remaining, " ")
	}

	if name := nameTerms(remaining); name != "" {
		clauses = append(clauses, fmt.Sprintf("name contains '%s'", escapeQueryValue(name)))
	}

	return strings.Join(clauses, " and ")
}

func detectMimeType(query string) string {
	lower := strings.ToLower(query)
	words := strings.Fields(lower)
	for _, mapping := range mimeKeywords {
		for _, kw := range mapping.keywords {
			for _, w := range words {
				if w == kw {
					return mapping.mimeType
				}
			}
		}
	}
	return ""
}

// modifiedTimeBound turns a relative date phrase into an RFC 3339 lower bound.
func (a *Adapter) modifiedTimeBound(phrase string) string {
	now := a.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var bound time.Time
	switch strings.ToLower(phrase) {
	case "today":
		bound = midnight
	case "yesterday":
		bound = midnight.AddDate(0, 0, -1)
	case "this week":
		bound = midnight.AddDate(0, 0, -int(now.Weekday()))
	case "last week":
		bound = midnight.AddDate(0, 0, -int(now.Weekday())-7)
	case "this month":
		bound = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	case "last month":
		bound = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	default:
		return ""
	}
	return bound.Format(time.RFC3339)
}

// nameTerms strips filler words and mime keywords, keeping what is likely
// the file name fragment.
func nameTerms(query string) string {
	stopwords := map[string]bool{
		"find": true, "search": true, "show": true, "get": true, "list": true,
		"my": true, "me": true, "the": true, "a": true, "an": true, "for": true,
		"file": true, "files": true, "from": true, "in": true, "on": true,
		"all": true, "of": true, "drive": true,
	}
	var terms []string
	for _, w := range strings.Fields(query) {
		lower := strings.ToLower(w)
		if stopwords[lower] || isMimeKeyword(lower) {
			continue
		}
		terms = append(terms, w)
	}
	return strings.Join(terms, " ")
}

func isMimeKeyword(word string) bool {
	for _, mapping := range mimeKeywords {
		for _, kw := range mapping.keywords {
			if word == kw {
				return true
			}
		}
	}
	return false
}

// escapeQueryValue escapes single quotes for embedding in a Drive query.
func escapeQueryValue(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}

// normalizeFile flattens a Drive file into the shared search item shape.
func normalizeFile(f google.File) map[string]interface{} {
	return map[string]interface{}{
		"id":            f.ID,
		"name":          f.Name,
		"mime_type":     f.MimeType,
		"modified_time": f.ModifiedTime,
		"size":          f.Size,
		"link":          f.WebViewLink,
	}
}

// SearchFiles runs the two-tier cascade. Never errors; empty on total failure.
func (a *Adapter) SearchFiles(ctx context.Context, owner, query string, limit int) []map[string]interface{} {
	if limit <= 0 || limit > a.maxResults {
		limit = a.maxResults
	}
	return a.search.Search(ctx, owner, query, limit)
}

// Process executes a contextual query against the files domain.
func (a *Adapter) Process(ctx context.Context, owner, contextualQuery string) assistant.DomainResult {
	answer, err := a.runner.Run(ctx, owner, contextualQuery, a.tools())
	if err != nil {
		a.logger.Printf("processing failed for owner %s: %v", owner, err)
		return assistant.DomainResult{Domain: assistant.DomainFiles, Success: false, Error: err.Error()}
	}
	return assistant.DomainResult{Domain: assistant.DomainFiles, Success: true, Data: answer}
}

func (a *Adapter) tools() []domains.Tool {
	return []domains.Tool{
		{
			Name:        "search_files",
			Description: "Search the user's files",
			Parameters:  `{"query": "<search terms, may mention file type or dates>", "limit": <optional int>}`,
			Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
				query := domains.StringParam(params, "query")
				limit := domains.IntParam(params, "limit", a.maxResults)
				items := a.SearchFiles(ctx, owner, query, limit)
				if len(items) == 0 {
					return "No files found.", nil
				}
				b, err := json.Marshal(items)
				if err != nil {
					return "", err
				}
				return string(b), nil
			},
		},
		{
			Name:        "create_file",
			Description: "Create a new empty document, spreadsheet or folder",
			Parameters:  `{"name": "<file name>", "type": "document|spreadsheet|presentation|folder"}`,
			Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
				name, err := domains.RequireString(params, "name")
				if err != nil {
					return "", err
				}
				mime := detectMimeType(domains.StringParam(params, "type"))
				if mime == "" {
					mime = "application/vnd.google-apps.document"
				}
				created, err := a.api.CreateFile(ctx, owner, google.File{Name: name, MimeType: mime})
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("File %q created with id %s", created.Name, created.ID), nil
			},
		},
		{
			Name:        "get_file",
			Description: "Fetch one file's metadata by id",
			Parameters:  `{"id": "<file id>"}`,
			Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
				id, err := domains.RequireString(params, "id")
				if err != nil {
					return "", err
				}
				file, err := a.api.GetFile(ctx, owner, id)
				if err != nil {
					return "", err
				}
				b, err := json.Marshal(normalizeFile(file))
				if err != nil {
					return "", err
				}
				return string(b), nil
			},
		},
		{
			Name:        "move_file",
			Description: "Move a file into a folder",
			Parameters:  `{"id": "<file id>", "folder_id": "<destination folder id>"}`,
			Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
				id, err := domains.RequireString(params, "id")
				if err != nil {
					return "", err
				}
				folderID, err := domains.RequireString(params, "folder_id")
				if err != nil {
					return "", err
				}
				moved, err := a.api.MoveFile(ctx, owner, id, folderID)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("File %s moved to folder %s", moved.ID, folderID), nil
			},
		},
		{
			Name:        "rename_file",
			Description: "Rename an existing file",
			Parameters:  `{"id": "<file id>", "name": "<new name>"}`,
			Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
				id, err := domains.RequireString(params, "id")
				if err != nil {
					return "", err
				}
				name, err := domains.RequireString(params, "name")
				if err != nil {
					return "", err
				}
				updated, err := a.api.RenameFile(ctx, owner, id, name)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("File %s renamed to %q", updated.ID, updated.Name), nil
			},
		},
		{
			Name:        "share_file",
			Description: "Share a file with a user by email",
			Parameters:  `{"id": "<file id>", "email": "<recipient email>", "role": "reader|writer"}`,
			Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
				id, err := domains.RequireString(params, "id")
				if err != nil {
					return "", err
				}
				email, err := domains.RequireString(params, "email")
				if err != nil {
					return "", err
				}
				role := domains.StringParam(params, "role")
				perm, err := a.api.ShareFile(ctx, owner, id, email, role)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("File %s shared with %s as %s", id, email, perm.Role), nil
			},
		},
		{
			Name:        "delete_file",
			Description: "Move a file to the trash",
			Parameters:  `{"id": "<file id>"}`,
			Run: func(ctx context.Context, owner string, params map[string]interface{}) (string, error) {
				id, err := domains.RequireString(params, "id")
				if err != nil {
					return "", err
				}
				if err := a.api.TrashFile(ctx, owner, id); err != nil {
					return "", err
				}
				return fmt.Sprintf("File %s moved to trash", id), nil
			},
		},
	}
}
