package activitypub

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// PublicURL is the ActivityStreams "to everyone" audience marker.
const PublicURL = "https://www.w3.org/ns/activitystreams#Public"

// DefaultContext is the @context emitted on all outgoing activities.
var DefaultContext = json.RawMessage(`"https://www.w3.org/ns/activitystreams"`)

// Envelope is the generic shape of an incoming or outgoing activity.
// Known fields are lifted out, everything else stays in Unparsed and
// is written back verbatim on marshal, so extension fields survive a
// relay hop through this server untouched.
type Envelope struct {
	Context json.RawMessage
	ID      string
	Kind    string
	Actor   string
	Object  json.RawMessage
	Target  string
	To      []string
	CC      []string
	Summary *string

	Unparsed map[string]json.RawMessage
}

// envelopeKeys are the fields lifted into the struct. Anything not
// listed here lands in Unparsed.
var envelopeKeys = map[string]bool{
	"@context": true,
	"id":       true,
	"type":     true,
	"actor":    true,
	"object":   true,
	"target":   true,
	"to":       true,
	"cc":       true,
	"summary":  true,
}

// ParseEnvelope decodes raw activity JSON. Missing id, type or actor
// is an error, every other field is optional.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("invalid activity json: %w", err)
	}

	env := &Envelope{Unparsed: map[string]json.RawMessage{}}
	env.Context = fields["@context"]

	if err := unmarshalString(fields, "id", &env.ID); err != nil {
		return nil, err
	}
	if err := unmarshalString(fields, "type", &env.Kind); err != nil {
		return nil, err
	}
	if raw, ok := fields["actor"]; ok {
		if err := json.Unmarshal(raw, &env.Actor); err != nil {
			// Some servers embed the full actor object. Fall back to
			// its id.
			var obj struct {
				ID string `json:"id"`
			}
			if err2 := json.Unmarshal(raw, &obj); err2 != nil || obj.ID == "" {
				return nil, fmt.Errorf("invalid actor field: %w", err)
			}
			env.Actor = obj.ID
		}
	}
	if env.ID == "" || env.Kind == "" || env.Actor == "" {
		return nil, fmt.Errorf("activity missing id, type or actor")
	}

	env.Object = fields["object"]

	if raw, ok := fields["target"]; ok {
		if err := json.Unmarshal(raw, &env.Target); err != nil {
			return nil, fmt.Errorf("invalid target field: %w", err)
		}
	}
	var err error
	if env.To, err = parseOneOrMany(fields["to"]); err != nil {
		return nil, fmt.Errorf("invalid to field: %w", err)
	}
	if env.CC, err = parseOneOrMany(fields["cc"]); err != nil {
		return nil, fmt.Errorf("invalid cc field: %w", err)
	}
	if raw, ok := fields["summary"]; ok && string(raw) != "null" {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("invalid summary field: %w", err)
		}
		env.Summary = &s
	}

	for key, val := range fields {
		if !envelopeKeys[key] {
			env.Unparsed[key] = val
		}
	}
	return env, nil
}

// MarshalJSON writes the envelope back out, unknown fields included.
// Audience fields are always arrays regardless of how they arrived.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	for key, val := range e.Unparsed {
		fields[key] = val
	}

	ctx := e.Context
	if ctx == nil {
		ctx = DefaultContext
	}
	fields["@context"] = ctx

	if err := putString(fields, "id", e.ID); err != nil {
		return nil, err
	}
	if err := putString(fields, "type", e.Kind); err != nil {
		return nil, err
	}
	if err := putString(fields, "actor", e.Actor); err != nil {
		return nil, err
	}
	if e.Object != nil {
		fields["object"] = e.Object
	}
	if e.Target != "" {
		if err := putString(fields, "target", e.Target); err != nil {
			return nil, err
		}
	}
	if len(e.To) > 0 {
		raw, err := json.Marshal(e.To)
		if err != nil {
			return nil, err
		}
		fields["to"] = raw
	}
	if len(e.CC) > 0 {
		raw, err := json.Marshal(e.CC)
		if err != nil {
			return nil, err
		}
		fields["cc"] = raw
	}
	if e.Summary != nil {
		raw, err := json.Marshal(*e.Summary)
		if err != nil {
			return nil, err
		}
		fields["summary"] = raw
	}

	return json.Marshal(fields)
}

// ObjectID returns the id of the wrapped object whether it arrived as
// a bare uri string or an embedded object.
func (e *Envelope) ObjectID() string {
	if len(e.Object) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Object, &s); err == nil {
		return s
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(e.Object, &obj); err == nil {
		return obj.ID
	}
	return ""
}

// ObjectKind returns the type of an embedded object, or "" when the
// object is a bare uri.
func (e *Envelope) ObjectKind() string {
	if len(e.Object) == 0 {
		return ""
	}
	var obj struct {
		Kind string `json:"type"`
	}
	if err := json.Unmarshal(e.Object, &obj); err != nil {
		return ""
	}
	return obj.Kind
}

// InnerEnvelope parses an embedded activity object, for Announce and
// Undo wrappers.
func (e *Envelope) InnerEnvelope() (*Envelope, error) {
	if len(e.Object) == 0 {
		return nil, fmt.Errorf("activity has no embedded object")
	}
	return ParseEnvelope(e.Object)
}

// Domain returns the host part of the activity id.
func (e *Envelope) Domain() (string, error) {
	parsed, err := url.Parse(e.ID)
	if err != nil {
		return "", fmt.Errorf("invalid activity id: %w", err)
	}
	return parsed.Host, nil
}

// GenerateActivityID mints a fresh id for an outgoing activity.
func GenerateActivityID(baseURL, kind string) string {
	return fmt.Sprintf("%s/activities/%s/%s", baseURL, strings.ToLower(kind), uuid.New().String())
}

func parseOneOrMany(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many, nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []string{one}, nil
}

func unmarshalString(fields map[string]json.RawMessage, key string, dest *string) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("invalid %s field: %w", key, err)
	}
	return nil
}

func putString(fields map[string]json.RawMessage, key, val string) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	fields[key] = raw
	return nil
}
