package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Message ids shared by the error handler and the transports.
const (
	MsgInvalidRequest  = "InvalidRequest"
	MsgEmptyMessage    = "EmptyMessage"
	MsgMessageTooLong  = "MessageTooLong"
	MsgRateLimited     = "RateLimited"
	MsgTimeout         = "Timeout"
	MsgUnavailable     = "Unavailable"
	MsgUpstreamError   = "UpstreamError"
	MsgCanceled        = "Canceled"
	MsgSessionNotFound = "SessionNotFound"
	MsgRequestTooLarge = "RequestTooLarge"
	MsgInternalError   = "InternalError"
)

// Translator localizes user-facing text and negotiates the language sent to Dialogflow.
type Translator struct {
	bundle   *i18n.Bundle
	matcher  language.Matcher
	codes    []string
	fallback string
}

// New loads the embedded message files. languages are the Dialogflow language codes the
// agent supports; fallback is used when negotiation finds nothing better and is always
// supported.
func New(fallback string, languages []string) (*Translator, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("failed to read locales: %w", err)
	}
	for _, f := range files {
		if _, err := bundle.LoadMessageFileFS(localeFS, "locales/"+f.Name()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", f.Name(), err)
		}
	}

	if fallback == "" {
		fallback = "en-US"
	}
	codes := []string{fallback}
	for _, code := range languages {
		code = strings.TrimSpace(code)
		if code != "" && !strings.EqualFold(code, fallback) {
			codes = append(codes, code)
		}
	}

	tags := make([]language.Tag, 0, len(codes))
	for _, code := range codes {
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("invalid language code %q: %w", code, err)
		}
		tags = append(tags, tag)
	}

	return &Translator{
		bundle:   bundle,
		matcher:  language.NewMatcher(tags),
		codes:    codes,
		fallback: fallback,
	}, nil
}

// MustNew is New for static configuration known to be valid.
func MustNew(fallback string, languages []string) *Translator {
	t, err := New(fallback, languages)
	if err != nil {
		panic(err)
	}
	return t
}

// Localize renders messageID for the languages in an Accept-Language header value.
// Unknown ids come back unchanged.
func (t *Translator) Localize(acceptLanguage, messageID string, data map[string]any) string {
	localizer := i18n.NewLocalizer(t.bundle, acceptLanguage, "en")
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil && msg == "" {
		return messageID
	}
	return msg
}

// DialogflowLanguage picks the supported Dialogflow language code that best matches an
// Accept-Language header value.
func (t *Translator) DialogflowLanguage(acceptLanguage string) string {
	if acceptLanguage == "" {
		return t.fallback
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return t.fallback
	}
	_, idx, conf := t.matcher.Match(tags...)
	if conf == language.No || idx < 0 || idx >= len(t.codes) {
		return t.fallback
	}
	return t.codes[idx]
}
