package browser

import (
	"fmt"
	"strings"
)

// collectInteractiveJS defines collectInteractive() in the page. Extraction and
// every interaction share it so ordinals line up between the two.
const collectInteractiveJS = `
const collectInteractive = () => {
	const selectors = ['a', 'button', 'input', 'select', 'textarea', '[role="button"]', '[role="link"]', '[onclick]'];
	const out = [];
	const seen = new Set();
	for (const selector of selectors) {
		for (const el of document.querySelectorAll(selector)) {
			if (seen.has(el)) {
				continue;
			}
			seen.add(el);
			const rect = el.getBoundingClientRect();
			const style = getComputedStyle(el);
			if (rect.width > 0 && rect.height > 0 && style.display !== 'none' && style.visibility !== 'hidden') {
				out.push(el);
			}
		}
	}
	return out;
};`

const extractElementsJS = `(() => {` + collectInteractiveJS + `
	return collectInteractive().map((el, index) => {
		const attributes = {};
		for (const attr of el.attributes) {
			attributes[attr.name] = attr.value;
		}
		const tag = el.tagName.toLowerCase();
		const text = (el.textContent || '').trim();
		return {
			index: index,
			tag: tag,
			text: text || null,
			attributes: attributes,
			is_interactive: true,
			is_visible: true,
			selector: tag + (el.id ? '#' + el.id : '') + (el.classList.length ? '.' + Array.from(el.classList).join('.') : '')
		};
	});
})()`

const pageTextJS = `(() => document.body ? document.body.innerText : '')()`

// actionJS wraps body in an IIFE that resolves element number index and
// reports whether it existed. body sees the element as el.
func actionJS(index int, body string) string {
	return fmt.Sprintf(`(() => {%s
	const elements = collectInteractive();
	const el = elements[%d];
	if (!el) {
		return {ok: false, count: elements.length};
	}
	%s
	return {ok: true, count: elements.length};
})()`, collectInteractiveJS, index, body)
}

func clickJS(index int) string {
	return actionJS(index, `el.click();`)
}

func typeJS(index int, text string) string {
	return actionJS(index, fmt.Sprintf(`el.focus();
	el.value = '%s';
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));`, quoteJS(text)))
}

func selectJS(index int, value string) string {
	return actionJS(index, fmt.Sprintf(`el.value = '%s';
	el.dispatchEvent(new Event('change', {bubbles: true}));`, quoteJS(value)))
}

func selectorPresentJS(selector string) string {
	return fmt.Sprintf(`document.querySelector('%s') !== null`, quoteJS(selector))
}

var jsQuoter = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\u2028", `\u2028`,
	"\u2029", `\u2029`,
)

// quoteJS escapes s for use inside a single-quoted JavaScript string literal.
func quoteJS(s string) string {
	return jsQuoter.Replace(s)
}
