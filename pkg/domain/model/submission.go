package model

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

// HashcodeLength is the number of characters kept from the digest
const HashcodeLength = 8

// RawSubmission is the immutable record of submitted values keyed by their content hash
type RawSubmission struct {
	Hashcode  types.Hashcode    `json:"hashcode"`
	FormID    types.FormID      `json:"form_id"`
	UserID    types.UserID      `json:"user_id"`
	Values    map[string]string `json:"values"`
	CreatedAt time.Time         `json:"created_at"`
}

// ResultBlock is one computed value shown to the user
type ResultBlock struct {
	Title   string `json:"title"`
	Label   string `json:"label"`
	Value   string `json:"value"`
	IsError bool   `json:"is_error"`
}

// ComputedResult is stored one to one with a RawSubmission
type ComputedResult struct {
	Hashcode  types.Hashcode `json:"hashcode"`
	FormID    types.FormID   `json:"form_id"`
	UserID    types.UserID   `json:"user_id"`
	MainValue string         `json:"main_value"`
	Main      *ResultBlock   `json:"main,omitempty"`
	Blocks    []ResultBlock  `json:"blocks"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ResultBlockTitle derives the block title from the field identity. Blocks are deduplicated by it.
func ResultBlockTitle(id types.FieldID) string {
	return "result-block-" + string(id)
}

// ComputeHashcode digests form, user and the submitted pairs sorted by key.
// The md5 hex digest is base64 encoded, lowercased and cut to 8 characters.
func ComputeHashcode(formID types.FormID, userID types.UserID, values map[string]string) types.Hashcode {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	b.WriteString("form_id")
	b.WriteString(string(formID))
	b.WriteString("user")
	b.WriteString(string(userID))
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(values[k])
	}

	sum := md5.Sum([]byte(b.String()))
	encoded := base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(sum[:])))
	return types.Hashcode(strings.ToLower(encoded)[:HashcodeLength])
}

// Matches reports whether query occurs, case insensitively, in the hashcode,
// the main value or any block value. An empty query matches everything.
func (r *ComputedResult) Matches(query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(string(r.Hashcode)), query) ||
		strings.Contains(strings.ToLower(r.MainValue), query) {
		return true
	}
	for _, block := range r.Blocks {
		if strings.Contains(strings.ToLower(block.Value), query) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy
func (r *ComputedResult) Clone() *ComputedResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.Main != nil {
		main := *r.Main
		out.Main = &main
	}
	out.Blocks = slices.Clone(r.Blocks)
	return &out
}

// Clone returns a deep copy
func (r *RawSubmission) Clone() *RawSubmission {
	if r == nil {
		return nil
	}
	out := *r
	if r.Values != nil {
		out.Values = make(map[string]string, len(r.Values))
		for k, v := range r.Values {
			out.Values[k] = v
		}
	}
	return &out
}
