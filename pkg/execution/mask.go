package execution

import (
	"cmp"
	"slices"
	"strings"
)

// masker replaces secure values in a chunked output. A secret may be split across
// chunks, so a trailing part of the text that could start a secret is held back
// until the next chunk or the final flush.
type masker struct {
	secrets []string
	longest int
	pending string
}

func newMasker(secrets []string) *masker {
	sorted := slices.Clone(secrets)
	// longer first, so a secret containing another one is masked whole
	slices.SortFunc(sorted, func(a, b string) int { return cmp.Compare(len(b), len(a)) })

	m := &masker{secrets: sorted}
	if len(sorted) > 0 {
		m.longest = len(sorted[0])
	}

	return m
}

// mask returns the part of the output that can be published now.
func (m *masker) mask(chunk string) string {
	if len(m.secrets) == 0 {
		return chunk
	}

	text := anonymize(m.pending+chunk, m.secrets)

	from := 0
	if i := strings.LastIndex(text, SecretMask); i >= 0 {
		from = i + len(SecretMask)
	}

	held := m.heldSuffix(text, from)
	m.pending = text[len(text)-held:]

	return text[:len(text)-held]
}

// flush returns the held back text. It never completes a secret, so it is published as is.
func (m *masker) flush() string {
	rest := m.pending
	m.pending = ""

	return rest
}

func (m *masker) heldSuffix(text string, from int) int {
	for k := min(m.longest-1, len(text)-from); k > 0; k-- {
		suffix := text[len(text)-k:]
		for _, secret := range m.secrets {
			if strings.HasPrefix(secret, suffix) {
				return k
			}
		}
	}

	return 0
}

func anonymize(chunk string, secrets []string) string {
	for _, secret := range secrets {
		chunk = strings.ReplaceAll(chunk, secret, SecretMask)
	}

	return chunk
}
