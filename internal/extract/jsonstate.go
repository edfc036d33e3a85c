package extract

import (
	"regexp"

	"github.com/outfitly/stylescout/internal/models"
)

// ParseJSONState turns a raw in-page JSON payload into a candidate. Each
// brand adapter supplies its own walker, coupled to that retailer's current
// front-end state shape; when the site redesigns, the walker comes up empty
// and the cascade moves on.
type ParseJSONState func(raw []byte) *models.Candidate

// ScriptJSONState reads the body of a script tag matched by selector (e.g.
// "script#__NEXT_DATA__") and hands it to the adapter's parser.
func ScriptJSONState(name, selector string, parse ParseJSONState) Strategy {
	return Strategy{
		Name: name,
		Extract: func(p *Page) *models.Candidate {
			script := p.doc.Find(selector).First()
			if script.Length() == 0 {
				return nil
			}
			return parse([]byte(script.Text()))
		},
	}
}

// RegexJSONState captures a JSON blob from the raw HTML with re (the first
// capture group) and hands it to the adapter's parser. For globals assigned
// inline, e.g. `window.__PRELOADED_STATE__ = {...};`.
func RegexJSONState(name string, re *regexp.Regexp, parse ParseJSONState) Strategy {
	return Strategy{
		Name: name,
		Extract: func(p *Page) *models.Candidate {
			m := re.FindStringSubmatch(p.HTML)
			if len(m) < 2 {
				return nil
			}
			return parse([]byte(m[1]))
		},
	}
}
