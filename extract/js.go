package extract

// Page scripts return JSON.stringify'd arrays so the Go side decodes one
// string, not a tree of CDP values.

// semanticPassScript queries fixed HTML-semantic categories and records
// geometry plus a computed-style snapshot for each visible match.
const semanticPassScript = `() => {
	const categories = [
		{kind: 'heading',     sel: 'h1, h2, h3, h4, h5, h6'},
		{kind: 'navigation',  sel: 'nav, [role="navigation"]'},
		{kind: 'form',        sel: 'form, input, select, textarea'},
		{kind: 'table',       sel: 'table'},
		{kind: 'list',        sel: 'ul, ol, dl'},
		{kind: 'interactive', sel: 'button, a[href], [role="button"], input[type="submit"]'},
		{kind: 'image',       sel: 'img, svg, picture'},
		{kind: 'content',     sel: 'main, article, section, p'},
	];

	const visible = (el, rect, cs) => {
		if (rect.width <= 0 || rect.height <= 0) return false;
		if (cs.display === 'none' || cs.visibility === 'hidden') return false;
		if (parseFloat(cs.opacity) === 0) return false;
		return true;
	};

	const snapshot = (cs) => ({
		color: cs.color,
		backgroundColor: cs.backgroundColor,
		borderColor: cs.borderTopColor,
		fontFamily: cs.fontFamily,
		fontSize: cs.fontSize,
		fontWeight: cs.fontWeight,
		padding: cs.padding,
		margin: cs.margin,
		gap: cs.gap,
		borderRadius: cs.borderRadius
	});

	const results = [];
	const seen = new Set();
	for (const cat of categories) {
		for (const el of document.querySelectorAll(cat.sel)) {
			if (seen.has(el)) continue;
			const rect = el.getBoundingClientRect();
			const cs = getComputedStyle(el);
			if (!visible(el, rect, cs)) continue;
			seen.add(el);
			results.push({
				kind: cat.kind,
				tag: el.tagName.toLowerCase(),
				text: (el.innerText || el.getAttribute('alt') || '').slice(0, 200),
				x: rect.x, y: rect.y, w: rect.width, h: rect.height,
				style: snapshot(cs)
			});
		}
	}
	return JSON.stringify(results);
}`

// visualPassScript scans all rendered nodes and keeps the visually
// significant ones, sorted by rendered area descending and capped. Format
// verbs: area threshold, top-N cap.
const visualPassScript = `() => {
	const AREA = %f;
	const TOP_N = %d;

	const results = [];
	for (const el of document.body.querySelectorAll('*')) {
		const rect = el.getBoundingClientRect();
		if (rect.width <= 0 || rect.height <= 0) continue;
		const cs = getComputedStyle(el);
		if (cs.display === 'none' || cs.visibility === 'hidden') continue;
		if (parseFloat(cs.opacity) === 0) continue;

		const area = rect.width * rect.height;
		const fontSize = parseFloat(cs.fontSize) || 0;
		const weight = parseInt(cs.fontWeight, 10) || 400;
		const text = (el.innerText || '').trim();
		const bg = cs.backgroundColor;
		const hasBackground = bg && bg !== 'transparent' && bg !== 'rgba(0, 0, 0, 0)';
		const hasBorder = parseFloat(cs.borderTopWidth) > 0 && cs.borderTopStyle !== 'none';

		const significant =
			area >= AREA ||
			(fontSize >= 20 && weight >= 600) ||
			hasBackground || hasBorder ||
			text.length >= 30;
		if (!significant) continue;

		results.push({
			kind: 'visual',
			tag: el.tagName.toLowerCase(),
			text: text.slice(0, 200),
			x: rect.x, y: rect.y, w: rect.width, h: rect.height,
			area: area,
			style: {
				color: cs.color,
				backgroundColor: cs.backgroundColor,
				borderColor: cs.borderTopColor,
				fontFamily: cs.fontFamily,
				fontSize: cs.fontSize,
				fontWeight: cs.fontWeight,
				padding: cs.padding,
				margin: cs.margin,
				gap: cs.gap,
				borderRadius: cs.borderRadius
			}
		});
	}
	results.sort((a, b) => b.area - a.area);
	return JSON.stringify(results.slice(0, TOP_N));
}`

// jsHeavyScript detects client-rendered pages: framework globals, framework
// root markers, or a high inline-script count.
const jsHeavyScript = `() => {
	if (window.React || window.Vue || window.angular || window.__NEXT_DATA__ ||
		window.__NUXT__ || window.Ember || window.Svelte) return true;
	if (document.querySelector('[data-reactroot], [data-v-app], [ng-version], #__next, #root:empty, #app:empty')) return true;
	const inline = document.querySelectorAll('script:not([src])').length;
	return inline > 10;
}`

// loadingIndicatorScript reports whether a visible loading indicator is
// still present.
const loadingIndicatorScript = `() => {
	const sels = [
		'[class*="loading" i]', '[class*="spinner" i]', '[class*="skeleton" i]',
		'[aria-busy="true"]', '[role="progressbar"]'
	];
	for (const sel of sels) {
		for (const el of document.querySelectorAll(sel)) {
			const rect = el.getBoundingClientRect();
			if (rect.width > 0 && rect.height > 0) return true;
		}
	}
	return false;
}`
