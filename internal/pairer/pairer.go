// Package pairer implements the pattern-based filename matching tried
// before falling back to the fingerprint matcher. It is pure string
// logic and performs no I/O.
package pairer

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/adkhex/audiosync/internal/models"
)

// builtinPatterns are tried in order when no valid user-supplied pattern
// is given. Each must have exactly the capture groups its key function
// expects.
var builtinPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[Ss](\d+)[Ee](\d+)`),        // S01E02
	regexp.MustCompile(`(\d+)x(\d+)`),                // 1x02
	regexp.MustCompile(`[._\-\s](\d{1,4})[._\-\s]`), // bounded separator-delimited integer
}

// Pair matches videos against audios by filename, stopping at the first
// pattern whose match sets share at least one key. A valid userPattern
// replaces the built-in list entirely: on failure it falls straight to
// the integer-tuple fallback without trying the built-ins. The built-in
// patterns are only used when no userPattern is supplied (an invalid
// one is ignored). If no pattern yields any shared key, falls back to
// pairing by the full tuple of integers found in each filename. Returns
// pairs sorted lexicographically by primary (video) path.
func Pair(videos, audios []string, userPattern string) []models.Pair {
	var patterns []*regexp.Regexp
	if userPattern != "" {
		if re, err := regexp.Compile(userPattern); err == nil {
			patterns = []*regexp.Regexp{re}
		} else {
			patterns = builtinPatterns
		}
	} else {
		patterns = builtinPatterns
	}

	for _, re := range patterns {
		pairs, ok := pairByPattern(videos, audios, re)
		if ok {
			return sortPairs(pairs)
		}
	}

	return sortPairs(pairByAllIntegers(videos, audios))
}

// pairByPattern keys every filename by its regex capture groups (joined)
// and pairs videos to audios sharing a key. ok is false if no key is
// shared by at least one video and one audio.
func pairByPattern(videos, audios []string, re *regexp.Regexp) ([]models.Pair, bool) {
	audioByKey := make(map[string][]string)
	for _, a := range audios {
		if key, ok := patternKey(re, a); ok {
			audioByKey[key] = append(audioByKey[key], a)
		}
	}

	var pairs []models.Pair
	shared := false
	for _, v := range videos {
		key, ok := patternKey(re, v)
		if !ok {
			continue
		}
		candidates, found := audioByKey[key]
		if !found || len(candidates) == 0 {
			continue
		}
		shared = true
		pairs = append(pairs, models.Pair{PrimaryPath: v, SecondaryPath: candidates[0]})
	}
	return pairs, shared
}

func patternKey(re *regexp.Regexp, name string) (string, bool) {
	m := re.FindStringSubmatch(filepath.Base(name))
	if m == nil || len(m) < 2 {
		return "", false
	}
	return strings.Join(m[1:], "-"), true
}

// pairByAllIntegers is the fallback: filenames matching identically by
// the full ordered tuple of embedded integers are paired. Digits in the
// file extension (e.g. the 4 of ".mp4") are not part of the tuple.
func pairByAllIntegers(videos, audios []string) []models.Pair {
	audioByKey := make(map[string][]string)
	for _, a := range audios {
		audioByKey[integerTupleKey(a)] = append(audioByKey[integerTupleKey(a)], a)
	}

	var pairs []models.Pair
	for _, v := range videos {
		key := integerTupleKey(v)
		if key == "" {
			continue
		}
		candidates := audioByKey[key]
		if len(candidates) == 0 {
			continue
		}
		pairs = append(pairs, models.Pair{PrimaryPath: v, SecondaryPath: candidates[0]})
	}
	return pairs
}

var integerRe = regexp.MustCompile(`\d+`)

func integerTupleKey(name string) string {
	base := filepath.Base(name)
	nums := integerRe.FindAllString(strings.TrimSuffix(base, filepath.Ext(base)), -1)
	if len(nums) == 0 {
		return ""
	}
	// Normalize away leading zeros so "01" and "1" key the same, matching
	// how a human would read an episode number.
	normalized := make([]string, len(nums))
	for i, n := range nums {
		v, err := strconv.Atoi(n)
		if err != nil {
			return ""
		}
		normalized[i] = strconv.Itoa(v)
	}
	return strings.Join(normalized, ",")
}

func sortPairs(pairs []models.Pair) []models.Pair {
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].PrimaryPath < pairs[j].PrimaryPath
	})
	return pairs
}
