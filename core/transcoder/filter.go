package transcoder

import "strings"

// FilterOption is one filter argument. An empty Key makes it positional.
type FilterOption struct {
	Key   string
	Value string
}

// Filter is a single filtergraph filter with structured options.
type Filter struct {
	Name    string
	Options []FilterOption
}

// F is shorthand for building a Filter.
func F(name string, opts ...FilterOption) Filter {
	return Filter{Name: name, Options: opts}
}

// KV builds a keyed option.
func KV(key, value string) FilterOption {
	return FilterOption{Key: key, Value: value}
}

// P builds a positional option.
func P(value string) FilterOption {
	return FilterOption{Value: value}
}

func (f Filter) String() string {
	if len(f.Options) == 0 {
		return f.Name
	}
	parts := make([]string, 0, len(f.Options))
	for _, o := range f.Options {
		v := escapeValue(o.Value)
		if o.Key != "" {
			v = o.Key + "=" + v
		}
		parts = append(parts, v)
	}
	return f.Name + "=" + strings.Join(parts, ":")
}

// Chain is a linear run of filters between labelled pads.
type Chain struct {
	Inputs  []string
	Filters []Filter
	Outputs []string
}

func (c Chain) String() string {
	var b strings.Builder
	for _, in := range c.Inputs {
		b.WriteString("[" + in + "]")
	}
	for i, f := range c.Filters {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.String())
	}
	for _, out := range c.Outputs {
		b.WriteString("[" + out + "]")
	}
	return b.String()
}

// Graph joins chains into a filter_complex argument.
func Graph(chains ...Chain) string {
	parts := make([]string, len(chains))
	for i, c := range chains {
		parts[i] = c.String()
	}
	return strings.Join(parts, ";")
}

var (
	// first level: characters special inside a filter option value
	optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	// second level: characters special to the filtergraph parser
	graphEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

// escapeValue applies both ffmpeg escaping levels so paths and free text
// survive as a single option value.
func escapeValue(v string) string {
	return graphEscaper.Replace(optionEscaper.Replace(v))
}
