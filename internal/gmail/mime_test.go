package gmail

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	gmail "google.golang.org/api/gmail/v1"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func leaf(mimeType, text string) *gmail.MessagePart {
	return &gmail.MessagePart{MimeType: mimeType, Body: &gmail.MessagePartBody{Data: b64(text)}}
}

func multipart(mimeType string, parts ...*gmail.MessagePart) *gmail.MessagePart {
	return &gmail.MessagePart{MimeType: mimeType, Body: &gmail.MessagePartBody{}, Parts: parts}
}

func TestDecodePayload_Body(t *testing.T) {
	tests := []struct {
		name string
		root *gmail.MessagePart
		want string
	}{
		{
			name: "nil payload",
			root: nil,
			want: "",
		},
		{
			name: "single plain part",
			root: leaf("text/plain", "Hello"),
			want: "Hello",
		},
		{
			name: "plain leaves joined in visitation order",
			// Siblings are popped last to first.
			root: multipart("multipart/mixed", leaf("text/plain", "first"), leaf("text/plain", "second")),
			want: "second\n\nfirst",
		},
		{
			name: "plain preferred over html",
			root: multipart("multipart/alternative", leaf("text/plain", "plain"), leaf("text/html", "<p>html</p>")),
			want: "plain",
		},
		{
			name: "html only kept verbatim",
			root: multipart("multipart/alternative", leaf("text/html", "<p>a</p>"), leaf("text/html", "<b>b</b>")),
			want: "<b>b</b>\n\n<p>a</p>",
		},
		{
			name: "empty plain part falls back to html",
			root: multipart("multipart/alternative",
				&gmail.MessagePart{MimeType: "text/plain", Body: &gmail.MessagePartBody{}},
				leaf("text/html", "<p>only</p>")),
			want: "<p>only</p>",
		},
		{
			name: "nested tree",
			root: multipart("multipart/mixed",
				multipart("multipart/alternative", leaf("text/plain", "inner"), leaf("text/html", "<i>inner</i>")),
				&gmail.MessagePart{MimeType: "application/pdf", Filename: "a.pdf", Body: &gmail.MessagePartBody{AttachmentId: "att"}},
			),
			want: "inner",
		},
		{
			name: "undecodable leaf skipped",
			root: multipart("multipart/mixed",
				&gmail.MessagePart{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "!!!not base64!!!"}},
				leaf("text/plain", "ok")),
			want: "ok",
		},
		{
			name: "non text leaves ignored",
			root: multipart("multipart/mixed", leaf("text/calendar", "BEGIN:VCALENDAR")),
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := DecodePayload(tt.root)
			assert.Equal(t, tt.want, body)
		})
	}
}

func TestDecodePayload_Attachments(t *testing.T) {
	tests := []struct {
		name string
		root *gmail.MessagePart
		want bool
	}{
		{
			name: "no attachment",
			root: multipart("multipart/alternative", leaf("text/plain", "a"), leaf("text/html", "b")),
			want: false,
		},
		{
			name: "filename only",
			root: multipart("multipart/mixed", leaf("text/plain", "a"), &gmail.MessagePart{Filename: "x.txt"}),
			want: true,
		},
		{
			name: "attachment id only",
			root: multipart("multipart/mixed", &gmail.MessagePart{Body: &gmail.MessagePartBody{AttachmentId: "att-1"}}),
			want: true,
		},
		{
			name: "attachment with inline data counts",
			root: &gmail.MessagePart{MimeType: "text/plain", Filename: "note.txt", Body: &gmail.MessagePartBody{Data: b64("inline")}},
			want: true,
		},
		{
			name: "deeply nested attachment next to undecodable part",
			root: multipart("multipart/mixed",
				&gmail.MessagePart{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "%%%"}},
				multipart("multipart/related", multipart("multipart/mixed", &gmail.MessagePart{Filename: "deep.png"}))),
			want: true,
		},
		{
			name: "part without body",
			root: multipart("multipart/mixed", &gmail.MessagePart{MimeType: "text/plain"}),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, attachments := DecodePayload(tt.root)
			assert.Equal(t, tt.want, attachments)
		})
	}
}

func TestWalkParts_VisitsEveryPart(t *testing.T) {
	root := multipart("multipart/mixed",
		multipart("multipart/alternative", leaf("text/plain", "a"), leaf("text/html", "b")),
		leaf("application/pdf", "c"),
	)

	var visited []string
	walkParts(root, func(p *gmail.MessagePart) { visited = append(visited, p.MimeType) })

	assert.Equal(t, []string{
		"multipart/mixed",
		"application/pdf",
		"multipart/alternative",
		"text/html",
		"text/plain",
	}, visited)
}

func TestDecodeBase64URL(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"padded", base64.URLEncoding.EncodeToString([]byte("ab")), "ab", true},
		{"unpadded", base64.RawURLEncoding.EncodeToString([]byte("ab")), "ab", true},
		{"url alphabet", base64.RawURLEncoding.EncodeToString([]byte{0xfb, 0xff, 0xbf}), "�", true},
		{"utf8", b64("caffè"), "caffè", true},
		{"invalid", "a", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decodeBase64URL(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
