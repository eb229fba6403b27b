package google

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Drive wraps the Drive v3 REST API.
type Drive struct {
	client  *Client
	baseURL string
}

func NewDrive(client *Client, baseURL string) *Drive {
	return &Drive{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// File is a Drive file resource.
type File struct {
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name,omitempty"`
	MimeType     string   `json:"mimeType,omitempty"`
	ModifiedTime string   `json:"modifiedTime,omitempty"`
	Size         string   `json:"size,omitempty"`
	WebViewLink  string   `json:"webViewLink,omitempty"`
	Trashed      bool     `json:"trashed,omitempty"`
	Parents      []string `json:"parents,omitempty"`
}

// Permission grants one principal access to a file.
type Permission struct {
	ID           string `json:"id,omitempty"`
	Type         string `json:"type"`
	Role         string `json:"role"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

type fileList struct {
	Files []File `json:"files"`
}

const fileFields = "files(id,name,mimeType,modifiedTime,size,webViewLink,trashed)"

// ListFiles runs a Drive query expression and returns matching files.
func (d *Drive) ListFiles(ctx context.Context, owner, queryExpr string, maxResults int) ([]File, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	params := url.Values{}
	if queryExpr != "" {
		params.Set("q", queryExpr)
	}
	params.Set("pageSize", strconv.Itoa(maxResults))
	params.Set("fields", fileFields)
	params.Set("orderBy", "modifiedTime desc")

	var list fileList
	if err := d.client.doJSON(ctx, owner, "GET", d.baseURL+"/files", params, nil, &list); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return list.Files, nil
}

// GetFile fetches one file's metadata.
func (d *Drive) GetFile(ctx context.Context, owner, id string) (File, error) {
	params := url.Values{}
	params.Set("fields", "id,name,mimeType,modifiedTime,size,webViewLink,trashed")
	var file File
	err := d.client.doJSON(ctx, owner, "GET", d.baseURL+"/files/"+url.PathEscape(id), params, nil, &file)
	if err != nil {
		return File{}, fmt.Errorf("get file %s: %w", id, err)
	}
	return file, nil
}

// CreateFile creates a metadata-only file (a Docs/Sheets shell or folder).
func (d *Drive) CreateFile(ctx context.Context, owner string, file File) (File, error) {
	var created File
	err := d.client.doJSON(ctx, owner, "POST", d.baseURL+"/files", nil, file, &created)
	if err != nil {
		return File{}, fmt.Errorf("create file: %w", err)
	}
	return created, nil
}

// RenameFile updates the file's display name.
func (d *Drive) RenameFile(ctx context.Context, owner, id, name string) (File, error) {
	var updated File
	err := d.client.doJSON(ctx, owner, "PATCH", d.baseURL+"/files/"+url.PathEscape(id), nil,
		map[string]string{"name": name}, &updated)
	if err != nil {
		return File{}, fmt.Errorf("rename file %s: %w", id, err)
	}
	return updated, nil
}

// MoveFile reparents a file under folderID. Drive has no move verb; the
// file's current parents are read first and swapped out in one PATCH.
func (d *Drive) MoveFile(ctx context.Context, owner, id, folderID string) (File, error) {
	params := url.Values{}
	params.Set("fields", "id,parents")
	var current File
	if err := d.client.doJSON(ctx, owner, "GET", d.baseURL+"/files/"+url.PathEscape(id), params, nil, &current); err != nil {
		return File{}, fmt.Errorf("move file %s: read parents: %w", id, err)
	}

	params = url.Values{}
	params.Set("addParents", folderID)
	if len(current.Parents) > 0 {
		params.Set("removeParents", strings.Join(current.Parents, ","))
	}
	var updated File
	err := d.client.doJSON(ctx, owner, "PATCH", d.baseURL+"/files/"+url.PathEscape(id), params,
		map[string]string{}, &updated)
	if err != nil {
		return File{}, fmt.Errorf("move file %s to %s: %w", id, folderID, err)
	}
	return updated, nil
}

// TrashFile marks a file as trashed instead of deleting it outright.
func (d *Drive) TrashFile(ctx context.Context, owner, id string) error {
	err := d.client.doJSON(ctx, owner, "PATCH", d.baseURL+"/files/"+url.PathEscape(id), nil,
		map[string]bool{"trashed": true}, nil)
	if err != nil {
		return fmt.Errorf("trash file %s: %w", id, err)
	}
	return nil
}

// ShareFile grants a user access to a file by email.
func (d *Drive) ShareFile(ctx context.Context, owner, id, email, role string) (Permission, error) {
	if role == "" {
		role = "reader"
	}
	perm := Permission{Type: "user", Role: role, EmailAddress: email}
	var created Permission
	err := d.client.doJSON(ctx, owner, "POST", d.baseURL+"/files/"+url.PathEscape(id)+"/permissions", nil, perm, &created)
	if err != nil {
		return Permission{}, fmt.Errorf("share file %s with %s: %w", id, email, err)
	}
	return created, nil
}
