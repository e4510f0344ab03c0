package sanitize

import (
	"regexp"
)

// Tags that must never render as visually empty blocks in the destination
// system: an empty pair is filled with a non-breaking space instead of being
// deleted.
var nbspTags = []string{"p", "td", "th", "li"}

var nbspFillRes = func() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(nbspTags))
	for i, tag := range nbspTags {
		res[i] = regexp.MustCompile(`<` + tag + `((?:\s[^<>]*)?)>\s*</` + tag + `>`)
	}
	return res
}()

// emptyPair matches a candidate empty open/close pair. RE2 has no
// backreferences, so the tag names are compared in the replacement callback.
var emptyPair = regexp.MustCompile(`<([a-z][a-z0-9:-]*)((?:\s[^<>]*)?)>\s*</([a-z][a-z0-9:-]*)>`)

var interTag = regexp.MustCompile(`>\s+<`)

// keepWhenEmpty is the nbsp-fill set; the generic deletion below skips it.
var keepWhenEmpty = map[string]bool{"p": true, "td": true, "th": true, "li": true}

// postPass fills or deletes empty tag pairs until a fixed point is reached,
// then collapses inter-tag whitespace. Deleting an inner empty pair can
// surface a newly-empty parent, hence the loop.
func postPass(s string) string {
	for {
		before := s
		for i, re := range nbspFillRes {
			tag := nbspTags[i]
			s = re.ReplaceAllString(s, "<"+tag+"${1}>\u00a0</"+tag+">")
		}
		s = emptyPair.ReplaceAllStringFunc(s, func(m string) string {
			sub := emptyPair.FindStringSubmatch(m)
			if sub[1] != sub[3] || keepWhenEmpty[sub[1]] {
				return m
			}
			return ""
		})
		if s == before {
			return interTag.ReplaceAllString(s, "><")
		}
	}
}
