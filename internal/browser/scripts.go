package browser

// IndexAttribute carries the box index on annotated elements.
const IndexAttribute = "data-box-number"

const overlayAttribute = "data-webpilot-overlay"

// AnnotateScript is a function expression taking
// {selector, overlay, colors}. It clears the previous pass, numbers every
// matching element from 1 in document order and returns their boxes with
// scroll-adjusted coordinates. With overlay set it draws a bordered,
// labelled rectangle over each element.
const AnnotateScript = `(function (opts) {
  document.querySelectorAll('[` + overlayAttribute + `]').forEach(function (n) { n.remove(); });
  document.querySelectorAll('[` + IndexAttribute + `]').forEach(function (n) { n.removeAttribute('` + IndexAttribute + `'); });
  var elements = Array.prototype.slice.call(document.querySelectorAll(opts.selector));
  return elements.map(function (el, i) {
    var index = i + 1;
    el.setAttribute('` + IndexAttribute + `', String(index));
    var rect = el.getBoundingClientRect();
    var tag = el.tagName.toLowerCase();
    var box = {
      index: index,
      x: rect.x + window.scrollX,
      y: rect.y + window.scrollY,
      width: rect.width,
      height: rect.height,
      tag: tag,
      type: tag === 'input' ? String(el.type || 'text').toLowerCase() : null
    };
    if (opts.overlay && document.body) {
      var color = opts.colors[i % opts.colors.length];
      var div = document.createElement('div');
      div.setAttribute('` + overlayAttribute + `', '');
      div.style.position = 'absolute';
      div.style.left = box.x + 'px';
      div.style.top = box.y + 'px';
      div.style.width = box.width + 'px';
      div.style.height = box.height + 'px';
      div.style.border = '3px solid ' + color;
      div.style.zIndex = '2147483647';
      div.style.pointerEvents = 'none';
      var label = document.createElement('span');
      label.textContent = String(index);
      label.style.position = 'absolute';
      label.style.left = '0';
      label.style.top = '0';
      label.style.background = color;
      label.style.color = '#fff';
      label.style.fontWeight = 'bold';
      label.style.padding = '2px 6px';
      label.style.fontSize = '16px';
      div.appendChild(label);
      document.body.appendChild(div);
    }
    return box;
  });
})`

// ClearOverlayScript removes the boxes and labels drawn by the last
// overlaid pass.
const ClearOverlayScript = `document.querySelectorAll('[` + overlayAttribute + `]').forEach(function (n) { n.remove(); })`

// stealthScript hides the most common automation fingerprint before any
// page script runs.
const stealthScript = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`
