package clientstate

import "time"

// Snapshot is the client-side state of a page captured at one point in time.
// A nil map or slice means that part was not read.
type Snapshot struct {
	TakenAt        time.Time
	LocalStorage   map[string]string
	SessionStorage map[string]string
	Cookies        []Cookie
}

// Report is the classified form of a Snapshot. A nil slice means "not
// checked"; an empty slice means the store was read and held nothing.
type Report struct {
	TakenAt        time.Time `json:"taken_at"`
	LocalStorage   []Entry   `json:"local_storage"`
	SessionStorage []Entry   `json:"session_storage"`
	Cookies        []Entry   `json:"cookies"`
}

// Classify runs the heuristics over every part of the snapshot that was read.
func Classify(s Snapshot) Report {
	r := Report{TakenAt: s.TakenAt}
	if s.LocalStorage != nil {
		r.LocalStorage = ClassifyStorage(SourceLocalStorage, s.LocalStorage)
	}
	if s.SessionStorage != nil {
		r.SessionStorage = ClassifyStorage(SourceSessionStorage, s.SessionStorage)
	}
	if s.Cookies != nil {
		r.Cookies = ClassifyCookies(s.Cookies)
	}
	return r
}

// Flagged returns every entry that looks like a token or a tenant identifier.
func (r Report) Flagged() []Entry {
	var out []Entry
	for _, group := range [][]Entry{r.LocalStorage, r.SessionStorage, r.Cookies} {
		for _, e := range group {
			if e.LooksLikeToken || e.LooksLikeTenant {
				out = append(out, e)
			}
		}
	}
	return out
}
