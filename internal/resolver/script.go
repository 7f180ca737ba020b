package resolver

// findJS is shared between the verify pass (returnByValue) and the handle
// pass (objectId): it re-derives the same candidate element from ref
// metadata so both passes agree on which node they mean. %s is the
// JSON-encoded ref string.
const findJS = `(() => {
	const ref = %s;
	const meta = window.__ariaRefMeta && window.__ariaRefMeta[ref];
	if (!meta) return null;

	const norm = (s) => (s || '').replace(/\s+/g, ' ').trim().toLowerCase().slice(0, 100);
	const wantName = norm(meta.name);

	function rootFor(hostPath) {
		let r = document;
		for (const hostSel of (hostPath || [])) {
			const host = r.querySelector(hostSel);
			if (!host || !host.shadowRoot) return null;
			r = host.shadowRoot;
		}
		return r;
	}

	function implicitRole(el) {
		const tag = el.tagName.toLowerCase();
		if (tag === 'a' && el.hasAttribute('href')) return 'link';
		if (tag === 'button') return 'button';
		if (tag === 'h1' || tag === 'h2' || tag === 'h3' || tag === 'h4' || tag === 'h5' || tag === 'h6') return 'heading';
		if (tag === 'img') return 'img';
		if (tag === 'select') return 'listbox';
		if (tag === 'textarea') return 'textbox';
		if (tag === 'input') {
			const t = (el.getAttribute('type') || 'text').toLowerCase();
			if (t === 'checkbox') return 'checkbox';
			if (t === 'radio') return 'radio';
			if (t === 'range') return 'slider';
			if (t === 'number') return 'spinbutton';
			if (t === 'search') return 'searchbox';
			if (t === 'button' || t === 'submit' || t === 'reset') return 'button';
			return 'textbox';
		}
		return '';
	}

	function computedRole(el) {
		return el.getAttribute('role') || implicitRole(el) || '';
	}

	function roleMatches(el) {
		return !meta.role || computedRole(el) === meta.role;
	}

	function nameMatches(el) {
		const n = norm(el.textContent || el.value || '');
		return wantName === '' || n.indexOf(wantName) !== -1;
	}

	function verify(el) {
		return !!el && el.isConnected && roleMatches(el) && nameMatches(el);
	}

	const root = rootFor(meta.shadowHostPath);
	if (root) {
		const el = root.querySelector(meta.selector);
		if (verify(el)) return el;
	}

	function scanRole(doc) {
		const sel = meta.role ? '[role="' + meta.role + '"], ' + meta.role : '*';
		let all;
		try { all = doc.querySelectorAll(sel); } catch (e) { all = doc.querySelectorAll('*'); }
		for (const el of all) {
			if (verify(el)) return el;
		}
		return null;
	}
	let found = scanRole(document);
	if (found) return found;

	function scanShadow(node) {
		const all = node.querySelectorAll ? node.querySelectorAll('*') : [];
		for (const el of all) {
			if (el.shadowRoot) {
				if (verify(el.shadowRoot.querySelector(meta.selector))) return el.shadowRoot.querySelector(meta.selector);
				const inner = scanShadow(el.shadowRoot);
				if (inner) return inner;
			}
		}
		return null;
	}
	found = scanShadow(document);
	return found;
})();`

// verifyJS wraps findJS with returnByValue semantics: it reports whether a
// candidate was found without allocating a remote object handle, so the
// first pass of the resolver's double-fetch can be released immediately
// (spec.md §5, resource management).
const verifyJS = `(() => {
	const find = ` + findJS + `
	return JSON.stringify({found: !!find});
})();`
