package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"slices"
	"strings"

	"github.com/pario-ai/gherkit/pkg/models"
)

// Inputs are the named request inputs a cache entry is keyed on.
type Inputs map[string]string

// HTMLInputs returns the inputs for an html_fetch entry.
func HTMLInputs(rawURL string) Inputs {
	return Inputs{"url": rawURL}
}

// CompletionInputs returns the inputs for an llm_completion entry.
func CompletionInputs(prompt, model string) Inputs {
	return Inputs{"prompt": prompt, "model": model}
}

// Canonicalize normalizes every value according to its key so that
// semantically equal requests produce identical inputs.
func Canonicalize(in Inputs) Inputs {
	out := make(Inputs, len(in))
	for k, v := range in {
		switch k {
		case "url":
			out[k] = NormalizeURL(v)
		case "model":
			out[k] = NormalizeModel(v)
		default:
			out[k] = NormalizeText(v)
		}
	}
	return out
}

// Fingerprint is the hex SHA-256 of kind and the canonical JSON of the
// canonicalized inputs. The kind is part of the hashed material, so equal
// inputs under different kinds never collide.
func Fingerprint(kind models.CacheKind, in Inputs) string {
	canon := Canonicalize(in)
	// encoding/json writes map keys in sorted order.
	data, _ := json.Marshal(canon)

	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeURL lower-cases scheme and host, drops default ports, the
// fragment and trailing slashes, and sorts the query. Values that do not
// parse as absolute URLs are only trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host

	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""

	if u.RawQuery != "" {
		q := u.Query()
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		var b strings.Builder
		for _, k := range keys {
			vals := q[k]
			slices.Sort(vals)
			for _, v := range vals {
				if b.Len() > 0 {
					b.WriteByte('&')
				}
				b.WriteString(url.QueryEscape(k))
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
		u.RawQuery = b.String()
	}
	u.ForceQuery = false
	return u.String()
}

// NormalizeText converts CRLF to LF, strips trailing whitespace from every
// line and trims the whole value.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// NormalizeModel trims and lower-cases a model name.
func NormalizeModel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
