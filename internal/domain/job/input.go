package job

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/target/bulkmail/internal/domain/model"
	"golang.org/x/net/publicsuffix"
)

// InputError describes the first invalid item of a submission.
type InputError struct {
	Index  int
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("item %d: %s", e.Index, e.Reason)
}

// NormalizeInputs validates every input for kind and returns cleaned copies.
// Find domains are reduced to their registrable domain (eTLD+1) so
// "https://www.Example.co.uk/about" and "example.co.uk" are the same lookup.
func NormalizeInputs(kind model.JobKind, inputs []model.ItemInput) ([]model.ItemInput, error) {
	out := make([]model.ItemInput, len(inputs))
	for i, in := range inputs {
		var (
			cleaned model.ItemInput
			reason  string
		)
		switch kind {
		case model.JobKindFind:
			cleaned, reason = normalizeFind(in)
		case model.JobKindVerify:
			cleaned, reason = normalizeVerify(in)
		default:
			return nil, fmt.Errorf("unsupported kind %q", kind)
		}
		if reason != "" {
			return nil, &InputError{Index: i, Reason: reason}
		}
		out[i] = cleaned
	}
	return out, nil
}

func normalizeFind(in model.ItemInput) (model.ItemInput, string) {
	name := strings.Join(strings.Fields(in.Name), " ")
	if name == "" {
		return model.ItemInput{}, "name is required"
	}
	domain, err := RegistrableDomain(in.Domain)
	if err != nil {
		return model.ItemInput{}, err.Error()
	}
	return model.ItemInput{Name: name, Domain: domain, Role: strings.TrimSpace(in.Role)}, ""
}

func normalizeVerify(in model.ItemInput) (model.ItemInput, string) {
	raw := strings.TrimSpace(in.Email)
	if raw == "" {
		return model.ItemInput{}, "email is required"
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return model.ItemInput{}, "email is not a bare address"
	}
	at := strings.LastIndexByte(raw, '@')
	if _, err := RegistrableDomain(raw[at+1:]); err != nil {
		return model.ItemInput{}, err.Error()
	}
	return model.ItemInput{Email: strings.ToLower(raw)}, ""
}

// RegistrableDomain strips scheme, path, port and "www." and returns the eTLD+1.
func RegistrableDomain(raw string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndexByte(d, ':'); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimSuffix(strings.TrimPrefix(d, "www."), ".")
	if d == "" {
		return "", fmt.Errorf("domain is required")
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(d)
	if err != nil {
		return "", fmt.Errorf("domain %q has no registrable part", d)
	}
	return etld1, nil
}
