package catalog

import (
	"fmt"
	"html/template"
	"io"
	"strings"
)

var pageTmpl = template.Must(template.New("catalog").Funcs(template.FuncMap{
	"label": TagLabel,
	"join":  strings.Join,
}).Parse(`<div class="catalog-filter-bar" id="{{.ID}}-filters">
<span class="catalog-filter-label">Filter:</span>
<button class="catalog-filter-btn active" data-filter="all">All</button>
{{- range .Tags}}
<button class="catalog-filter-btn" data-filter="{{.}}">{{label .}}</button>
{{- end}}
</div>
<div class="tool-card-grid">
{{- range .Entries}}
<a href="{{.Link}}" class="tool-card" data-tags="{{join .Tags " "}}">
    <div class="tool-card-image-wrapper">
        <img src="{{.Icon}}" alt="{{.Title}}">
    </div>
    <div class="tool-card-content">
        <h3>{{.Title}}</h3>
        <p>{{.Description}}</p>
    </div>
</a>
{{- end}}
</div>
<script>
    (function() {
        function initCatalog() {
            const filterContainer = document.getElementById({{printf "%s-filters" .ID}});
            if (!filterContainer) return;

            const buttons = filterContainer.querySelectorAll('.catalog-filter-btn');
            const cards = document.querySelectorAll('.tool-card');

            function filterCards(filterValue) {
                buttons.forEach(btn => {
                    if (btn.getAttribute('data-filter') === filterValue) {
                        btn.classList.add('active');
                    } else {
                        btn.classList.remove('active');
                    }
                });

                cards.forEach(card => {
                    const cardTags = (card.getAttribute('data-tags') || '').split(' ');
                    if (filterValue === 'all' || cardTags.includes(filterValue)) {
                        card.style.display = 'flex';
                    } else {
                        card.style.display = 'none';
                    }
                });
            }

            buttons.forEach(btn => {
                btn.addEventListener('click', () => {
                    const filter = btn.getAttribute('data-filter');
                    filterCards(filter);

                    const url = new URL(window.location);
                    if (filter === 'all') {
                        url.searchParams.delete('topic');
                    } else {
                        url.searchParams.set('topic', filter);
                    }
                    window.history.pushState({}, '', url);
                });
            });

            const urlParams = new URLSearchParams(window.location.search);
            const topic = urlParams.get('topic');
            if (topic) {
                const matchingBtn = Array.from(buttons).find(btn => btn.getAttribute('data-filter') === topic);
                if (matchingBtn) {
                    filterCards(topic.toLowerCase());
                }
            }
        }

        if (document.readyState === 'loading') {
            document.addEventListener('DOMContentLoaded', initCatalog);
        } else {
            initCatalog();
        }
    })();
</script>
`))

// Render writes the filter bar, the card grid and the filter script for
// entries. All page supplied text is HTML escaped.
func Render(w io.Writer, entries []Entry, opts Options) error {
	opts = withDefaults(opts)
	data := struct {
		ID      string
		Tags    []string
		Entries []Entry
	}{
		ID:      opts.ID,
		Tags:    Tags(entries),
		Entries: entries,
	}
	if err := pageTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("catalog: render: %w", err)
	}
	return nil
}

// RenderString is Render into a string.
func RenderString(entries []Entry, opts Options) (string, error) {
	var b strings.Builder
	if err := Render(&b, entries, opts); err != nil {
		return "", err
	}
	return b.String(), nil
}
