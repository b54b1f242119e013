package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// OriginKind names a variant of the Origin union.
type OriginKind string

// Origin variants.
const (
	OriginMail  OriginKind = "mail"
	OriginChat  OriginKind = "chat"
	OriginScan  OriginKind = "scan"
	OriginOther OriginKind = "other"
)

// Origin is source-specific provenance. The set of implementations is
// closed: MailOrigin, ChatOrigin, ScanOrigin and OtherOrigin.
type Origin interface {
	// Kind returns the variant name.
	Kind() OriginKind

	// Summary returns a one-line human description, also fed to full-text search.
	Summary() string

	// ProvenanceID returns the identifier of the item in its source system
	// (message ID, channel/thread, original path).
	ProvenanceID() string

	isOrigin()
}

// OriginKindForSource maps a record source to its origin variant.
func OriginKindForSource(source string) OriginKind {
	switch source {
	case "mail", "gmail", "imap", "email":
		return OriginMail
	case "slack", "chat":
		return OriginChat
	case "scan", "localdocs", "gdocs":
		return OriginScan
	default:
		return OriginOther
	}
}

// DecodeOrigin decodes a flat origin object into the variant for source.
func DecodeOrigin(source string, data []byte) (Origin, error) {
	switch OriginKindForSource(source) {
	case OriginMail:
		var o MailOrigin
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, err
		}
		return &o, nil
	case OriginChat:
		var o ChatOrigin
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, err
		}
		return &o, nil
	case OriginScan:
		var o ScanOrigin
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, err
		}
		return &o, nil
	default:
		var values map[string]any
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, err
		}
		return &OtherOrigin{Values: values}, nil
	}
}

// MailOrigin is provenance of content received by email.
type MailOrigin struct {
	MessageID string `json:"message_id,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Date      string `json:"date,omitempty"`
	Mailbox   string `json:"mailbox,omitempty"`
	// Attachment is the original attachment filename, if the content was one.
	Attachment string `json:"attachment,omitempty"`
}

func (o *MailOrigin) Kind() OriginKind { return OriginMail }

func (o *MailOrigin) Summary() string {
	return joinNonEmpty(" ", o.Subject, o.From, o.Attachment)
}

func (o *MailOrigin) ProvenanceID() string { return o.MessageID }

func (o *MailOrigin) isOrigin() {}

// ChatOrigin is provenance of archived chat conversations.
type ChatOrigin struct {
	Workspace   string `json:"workspace,omitempty"`
	ChannelID   string `json:"channel_id,omitempty"`
	ChannelName string `json:"channel_name,omitempty"`
	ThreadTS    string `json:"thread_ts,omitempty"`
	Permalink   string `json:"permalink,omitempty"`
}

func (o *ChatOrigin) Kind() OriginKind { return OriginChat }

func (o *ChatOrigin) Summary() string {
	channel := o.ChannelName
	if channel == "" {
		channel = o.ChannelID
	}
	if channel != "" {
		channel = "#" + channel
	}
	return joinNonEmpty(" ", o.Workspace, channel)
}

func (o *ChatOrigin) ProvenanceID() string {
	if o.ThreadTS == "" {
		return o.ChannelID
	}
	return o.ChannelID + "/" + o.ThreadTS
}

func (o *ChatOrigin) isOrigin() {}

// ScanOrigin is provenance of scanned or locally imported documents.
type ScanOrigin struct {
	Device       string     `json:"device,omitempty"`
	OriginalPath string     `json:"original_path,omitempty"`
	Pages        int        `json:"pages,omitempty"`
	ScannedAt    *time.Time `json:"scanned_at,omitempty"`
}

func (o *ScanOrigin) Kind() OriginKind { return OriginScan }

func (o *ScanOrigin) Summary() string {
	name := o.OriginalPath
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return joinNonEmpty(" ", name, o.Device)
}

func (o *ScanOrigin) ProvenanceID() string { return o.OriginalPath }

func (o *ScanOrigin) isOrigin() {}

// OtherOrigin holds provenance for sources without a dedicated variant.
type OtherOrigin struct {
	Values map[string]any
}

func (o *OtherOrigin) Kind() OriginKind { return OriginOther }

// Summary joins the string values in key order.
func (o *OtherOrigin) Summary() string {
	keys := make([]string, 0, len(o.Values))
	for k := range o.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if s, ok := o.Values[k].(string); ok {
			parts = append(parts, s)
		}
	}
	return joinNonEmpty(" ", parts...)
}

// ProvenanceID returns the first of the conventional id keys present.
func (o *OtherOrigin) ProvenanceID() string {
	for _, k := range []string{"id", "message_id", "external_id", "url", "path"} {
		if s, ok := o.Values[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func (o *OtherOrigin) isOrigin() {}

// MarshalJSON encodes the values as a flat object.
func (o *OtherOrigin) MarshalJSON() ([]byte, error) {
	if o.Values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(o.Values)
}

// OriginJSON encodes an origin for the catalog, "{}" when nil.
func OriginJSON(o Origin) (string, error) {
	if o == nil {
		return "{}", nil
	}
	data, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("marshalling origin: %w", err)
	}
	return string(data), nil
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
