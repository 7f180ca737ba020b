package aria

// bootstrapJS is injected at document start (Page.addScriptToEvaluateOnNewDocument)
// so every new document starts with the ref bookkeeping the rest of this
// package depends on. Mirrors the teacher's exposeFunc pattern of shipping
// fixed JS templates as Go string constants.
const bootstrapJS = `(() => {
	if (window.__ariaBootstrapped) return;
	window.__ariaBootstrapped = true;
	window.__ariaRefs = new Map();
	window.__ariaRefMeta = Object.create(null);
	window.__ariaRefCounter = 0;
	window.__ariaSnapshotId = 1;
	window.__ariaFrameId = window === window.top ? 'f0' : ('f' + Math.floor(Math.random() * 1e9));
})();`

// snapshotJS walks the DOM (or a sub-root) and returns a JSON-encoded array
// of node records plus the new snapshot generation. Invoked via
// Runtime.evaluate with returnByValue. Arguments are passed by string
// substitution of a JSON-encoded options object, matching the page's own
// bootstrap convention of fixed templates.
const snapshotJS = `(() => {
	const opts = %s;
	const norm = (s) => (s || '').replace(/\s+/g, ' ').trim();
	const truncate = (s, n) => (s.length > n ? s.slice(0, n - 1) + '…' : s);

	function isVisible(el) {
		if (!el.isConnected) return false;
		const cs = getComputedStyle(el);
		if (cs.display === 'none' || cs.visibility === 'hidden' || cs.opacity === '0') return false;
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
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

	function role(el) {
		return el.getAttribute('role') || implicitRole(el) || '';
	}

	function accessibleName(el, r, ancestorLinkName) {
		let name = el.getAttribute('aria-label') || el.getAttribute('title') || el.getAttribute('placeholder');
		if (!name && el.tagName.toLowerCase() === 'select') {
			const opt = el.options && el.options[el.selectedIndex];
			name = opt ? opt.textContent : '';
		}
		if (!name) name = el.textContent;
		if (!name) name = el.value;
		name = truncate(norm(name), opts.maxNameLength || 150);
		if (r === 'heading' && ancestorLinkName && name === ancestorLinkName) return '';
		return name;
	}

	function stateBits(el, r) {
		const st = {};
		if (el.checked) st.checked = true;
		if (el.disabled) st.disabled = true;
		if (el.hasAttribute('aria-expanded')) st.expanded = el.getAttribute('aria-expanded') === 'true';
		const lvl = el.getAttribute('aria-level') || (/^h([1-6])$/i.exec(el.tagName) || [])[1];
		if (lvl) st.level = Number(lvl);
		if (el.selected || el.getAttribute('aria-selected') === 'true') st.selected = true;
		if (el.getAttribute('aria-pressed') === 'true') st.pressed = true;
		if (el.required) st.required = true;
		if (el.readOnly) st.readonly = true;
		if (document.activeElement === el) st.focused = true;
		return st;
	}

	function interactive(el, r) {
		return ['link', 'button', 'checkbox', 'radio', 'slider', 'spinbutton', 'searchbox', 'textbox', 'listbox'].indexOf(r) !== -1
			|| el.tabIndex >= 0;
	}

	function cssPath(el) {
		if (el.id) return '#' + CSS.escape(el.id);
		const parts = [];
		let cur = el;
		while (cur && cur.nodeType === 1 && parts.length < 6) {
			let part = cur.tagName.toLowerCase();
			if (cur.parentNode) {
				const siblings = Array.prototype.filter.call(cur.parentNode.children, (c) => c.tagName === cur.tagName);
				if (siblings.length > 1) part += ':nth-of-type(' + (siblings.indexOf(cur) + 1) + ')';
			}
			parts.unshift(part);
			cur = cur.parentElement;
		}
		return parts.join(' > ');
	}

	function findOrAssignRef(el, r, name, hostPath) {
		if (el.__ariaRef) {
			const meta = window.__ariaRefMeta[el.__ariaRef];
			if (meta) return el.__ariaRef;
		}
		window.__ariaRefCounter++;
		const ref = window.__ariaFrameId + 's' + window.__ariaSnapshotId + 'e' + window.__ariaRefCounter;
		window.__ariaRefMeta[ref] = { selector: cssPath(el), role: r, name: name, shadowHostPath: hostPath };
		el.__ariaRef = ref;
		return ref;
	}

	const nodes = [];
	let viewportCount = 0;
	const vw = window.innerWidth, vh = window.innerHeight;

	function walk(el, depth, parentIndex, hostPath, ancestorLinkName) {
		const r = role(el);
		const visible = isVisible(el);
		const name = accessibleName(el, r, ancestorLinkName);
		const isHeading = r === 'heading';
		let ref = null;
		if (visible && (interactive(el, r) || isHeading)) {
			ref = findOrAssignRef(el, r, name, hostPath);
		}
		const rect = el.getBoundingClientRect ? el.getBoundingClientRect() : null;
		const inViewport = rect && rect.bottom > 0 && rect.right > 0 && rect.top < vh && rect.left < vw;
		if (inViewport) viewportCount++;

		const myIndex = nodes.length;
		nodes.push({
			role: r, name: name, ref: ref, depth: depth, parent: parentIndex,
			visible: visible, states: stateBits(el, r),
			box: rect ? { x: rect.x, y: rect.y, w: rect.width, h: rect.height } : null,
			inViewport: !!inViewport,
		});

		const childLinkName = r === 'link' ? name : ancestorLinkName;
		for (const child of el.children) {
			walk(child, depth + 1, myIndex, hostPath, childLinkName);
		}
		if (opts.pierceShadow && el.shadowRoot) {
			const newHostPath = hostPath.concat([cssPath(el)]);
			for (const child of el.shadowRoot.children) {
				walk(child, depth + 1, myIndex, newHostPath, childLinkName);
			}
		}
	}

	const root = opts.rootSelector ? document.querySelector(opts.rootSelector) : document.documentElement;
	if (root) walk(root, 0, -1, [], '');

	if (opts.explicit) window.__ariaSnapshotId++;

	return JSON.stringify({
		nodes: nodes,
		snapshotId: window.__ariaSnapshotId,
		frameId: window.__ariaFrameId,
		url: location.href,
		scrollY: window.scrollY,
		viewportElements: viewportCount,
	});
})();`
