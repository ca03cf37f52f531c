package gmail

import (
	"encoding/base64"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

const (
	mimeTextPlain = "text/plain"
	mimeTextHTML  = "text/html"
)

// DecodePayload extracts the text body of a message part tree and reports
// whether any part is an attachment.
//
// Every part is visited. A part is an attachment when it has a filename or
// an attachment ID, whatever its body. Decoded text/plain leaves are joined
// with a blank line; when none yields text, text/html leaves are joined the
// same way with their markup intact. Leaves that fail to decode are skipped.
func DecodePayload(root *gmail.MessagePart) (body string, attachments bool) {
	if root == nil {
		return "", false
	}

	var plain, html []string
	walkParts(root, func(part *gmail.MessagePart) {
		if part.Filename != "" || (part.Body != nil && part.Body.AttachmentId != "") {
			attachments = true
		}
		if part.Body == nil || part.Body.Data == "" {
			return
		}

		text, ok := decodeBase64URL(part.Body.Data)
		if !ok || text == "" {
			return
		}
		switch part.MimeType {
		case mimeTextPlain:
			plain = append(plain, text)
		case mimeTextHTML:
			html = append(html, text)
		}
	})

	if len(plain) > 0 {
		return strings.Join(plain, "\n\n"), attachments
	}
	return strings.Join(html, "\n\n"), attachments
}

// walkParts visits the tree depth-first with an explicit stack. Children are
// pushed in order, so siblings are visited last to first.
func walkParts(root *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	stack := []*gmail.MessagePart{root}
	for len(stack) > 0 {
		part := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if part == nil {
			continue
		}
		fn(part)
		stack = append(stack, part.Parts...)
	}
}

// decodeBase64URL decodes Gmail body data. Padding is optional on input.
// Invalid UTF-8 sequences become U+FFFD.
func decodeBase64URL(data string) (string, bool) {
	s := strings.NewReplacer("-", "+", "_", "/").Replace(strings.TrimSpace(data))
	if pad := len(s) % 4; pad != 0 {
		s += strings.Repeat("=", 4-pad)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", false
	}
	return strings.ToValidUTF8(string(raw), "�"), true
}
