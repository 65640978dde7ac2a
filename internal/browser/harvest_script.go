package browser

// harvestScript returns the in-page collector. It walks the DOM in a fixed
// pass order, captures each candidate at most once, and exports the raw
// features the grounding pipeline needs. Selector synthesis and
// classification stay on the Go side so they remain deterministic and
// testable.
func harvestScript() string {
	return `
(() => {
	try {
		const MAX_WALK = 64;
		const TEXT_CAP = 100;
		const body = document.body;
		if (!body) return [];

		const records = [];
		const nodes = [];
		const seen = new Set();
		const captured = new Map();

		const testAttrs = ['data-testid', 'data-test-id', 'data-test', 'data-qa', 'data-cy'];

		const visibleRect = (el) => {
			const rect = el.getBoundingClientRect();
			if (!(rect.width > 0 && rect.height > 0)) return null;
			const style = window.getComputedStyle(el);
			if (style.display === 'none' || style.visibility === 'hidden') return null;
			if (parseFloat(style.opacity) === 0) return null;
			if (style.pointerEvents === 'none') return null;
			return rect;
		};

		const trimmedText = (el) => {
			let txt = (el.innerText || el.textContent || '').trim().replace(/\s+/g, ' ');
			if (txt.length > TEXT_CAP) txt = txt.slice(0, TEXT_CAP);
			return txt;
		};

		const walkAncestors = (el) => {
			const out = [];
			let cur = el.parentElement;
			let hops = 0;
			while (cur && cur !== body && hops < MAX_WALK) {
				out.push({
					tag: cur.tagName.toLowerCase(),
					role: cur.getAttribute('role') || '',
					id: cur.id || '',
					cls: (typeof cur.className === 'string' ? cur.className : '').slice(0, 200)
				});
				cur = cur.parentElement;
				hops++;
			}
			return out;
		};

		const capture = (el, pass) => {
			if (seen.has(el)) return;
			seen.add(el);

			const rect = visibleRect(el);
			if (!rect) return;

			let testAttr = '';
			let testValue = '';
			for (const attr of testAttrs) {
				const v = el.getAttribute(attr);
				if (v) {
					testAttr = attr;
					testValue = v;
					break;
				}
			}

			records.push({
				tag: el.tagName.toLowerCase(),
				role: el.getAttribute('role') || '',
				text: trimmedText(el),
				pass: pass,
				contentEditable: el.isContentEditable === true,
				box: { x: rect.left, y: rect.top, width: rect.width, height: rect.height },
				attrs: {
					ariaLabel: el.getAttribute('aria-label') || '',
					placeholder: el.getAttribute('placeholder') || '',
					title: el.getAttribute('title') || '',
					name: el.getAttribute('name') || '',
					type: el.getAttribute('type') || '',
					value: (typeof el.value === 'string' ? el.value : '').slice(0, 100),
					id: el.id || '',
					classes: (typeof el.className === 'string' ? el.className : '').slice(0, 200),
					testAttr: testAttr,
					testValue: testValue
				},
				ancestors: walkAncestors(el),
				parentCandidates: []
			});
			captured.set(el, records.length - 1);
			nodes.push(el);
		};

		const passes = [
			'button, a, input, textarea, select',
			'[role="button"], [role="link"], [role="textbox"], [role="menuitem"], [role="tab"], [role="option"], [role="switch"], [role="checkbox"], [role="radio"]',
			'[contenteditable="true"], [contenteditable=""]',
			'[onclick]',
			'[data-testid], [data-test-id], [data-test], [data-qa], [data-cy]'
		];
		passes.forEach((sel, i) => {
			document.querySelectorAll(sel).forEach((el) => capture(el, i));
		});

		document.querySelectorAll('div, span').forEach((el) => {
			if (seen.has(el)) return;
			const style = window.getComputedStyle(el);
			if (style.cursor !== 'pointer') return;
			const rect = el.getBoundingClientRect();
			if (rect.width < 20 || rect.width > 500 || rect.height < 20 || rect.height > 200) return;
			const txt = trimmedText(el);
			if (!txt || txt.length > 50) return;
			capture(el, 5);
		});

		records.forEach((rec, i) => {
			const chain = [];
			let cur = nodes[i].parentElement;
			let hops = 0;
			while (cur && cur !== body && hops < MAX_WALK) {
				const idx = captured.get(cur);
				if (idx !== undefined) chain.push(idx);
				cur = cur.parentElement;
				hops++;
			}
			rec.parentCandidates = chain;
		});

		return records;
	} catch (e) {
		return [];
	}
})()
`
}
