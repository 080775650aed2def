package browser

import (
	"encoding/json"
	"fmt"
	"strings"
)

const markerAttr = "data-webaudit"

// storageDump is the result of storageScript. A store that threw on access
// (opaque origins, disabled storage) comes back as null.
type storageDump struct {
	Local   map[string]string `json:"local"`
	Session map[string]string `json:"session"`
}

const storageScript = `(() => {
  const dump = (name) => {
    try {
      const s = window[name];
      const out = {};
      for (let i = 0; i < s.length; i++) {
        const k = s.key(i);
        out[k] = String(s.getItem(k));
      }
      return out;
    } catch (e) {
      return null;
    }
  };
  return { local: dump("localStorage"), session: dump("sessionStorage") };
})()`

type candidateKind int

const (
	candidateCSS candidateKind = iota
	// candidateLabel matches a form control by its label text or aria-label.
	candidateLabel
	// candidateText matches a button by its visible text.
	candidateText
)

// candidate is one entry of a login selector list: "label:<regexp>",
// "text:<regexp>" or a plain CSS selector.
type candidate struct {
	kind  candidateKind
	value string
}

func parseCandidate(raw string) candidate {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "label:"):
		return candidate{kind: candidateLabel, value: strings.TrimPrefix(raw, "label:")}
	case strings.HasPrefix(raw, "text:"):
		return candidate{kind: candidateText, value: strings.TrimPrefix(raw, "text:")}
	default:
		return candidate{kind: candidateCSS, value: raw}
	}
}

// selector returns the CSS selector addressing the matched element.
func (c candidate) selector(field string) string {
	if c.kind == candidateCSS {
		return c.value
	}
	return fmt.Sprintf(`[%s=%q]`, markerAttr, field)
}

// markScript finds the element for a label or text candidate and tags it with
// the marker attribute. It evaluates to true when an element was tagged.
func markScript(c candidate, field string) string {
	kind := "label"
	if c.kind == candidateText {
		kind = "text"
	}
	args, _ := json.Marshal([]string{kind, c.value, markerAttr, field})
	return fmt.Sprintf(`((kind, pattern, attr, mark) => {
  const re = new RegExp(pattern, "i");
  document.querySelectorAll("[" + attr + "=\"" + mark + "\"]").forEach((el) => el.removeAttribute(attr));
  let el = null;
  if (kind === "label") {
    for (const l of document.querySelectorAll("label")) {
      if (l.control && re.test(l.textContent || "")) { el = l.control; break; }
    }
    if (!el) {
      for (const i of document.querySelectorAll("input[aria-label]")) {
        if (re.test(i.getAttribute("aria-label"))) { el = i; break; }
      }
    }
  } else {
    for (const b of document.querySelectorAll("button, [role=button], input[type=submit]")) {
      const t = b.innerText || b.value || b.getAttribute("aria-label") || "";
      if (re.test(t.trim())) { el = b; break; }
    }
  }
  if (!el) return false;
  el.setAttribute(attr, mark);
  return true;
})(...%s)`, args)
}
