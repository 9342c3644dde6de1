package viewer

import (
	"fmt"
	"html/template"
	"net/http"

	"github.com/lumava/surfcast/surface"
)

// The page uses [[ ]] as template delimiters: the embedded renderer's data
// binding syntax is {{/path}}, which must reach the browser literally.
var pageTemplate = template.Must(template.New("surface").Delims("[[", "]]").Parse(pageHTML))

type pageData struct {
	SurfaceID   string
	Title       string
	Width       string
	Height      string
	MaxWidth    string
	MaxHeight   string
	BodyDisplay string
	SizeLabel   string
}

func renderPage(w http.ResponseWriter, st *surface.State) {
	d := pageData{
		SurfaceID: st.ID,
		Title:     st.Name,
	}
	if d.Title == "" {
		d.Title = st.ID
	}

	size := st.Size
	if size.Preset == surface.PresetAuto || (size.Width == nil && size.Height == nil) {
		// Auto mode: fill the viewport.
		d.Width, d.Height = "100%", "100%"
		d.MaxWidth, d.MaxHeight = "none", "none"
		d.BodyDisplay = "block"
		d.SizeLabel = fmt.Sprintf("auto (%s)", size.Preset)
	} else {
		// Fixed size: center in the viewport.
		d.Width = cssPixels(size.Width)
		d.Height = cssPixels(size.Height)
		d.MaxWidth, d.MaxHeight = "100vw", "100vh"
		d.BodyDisplay = "flex"
		d.SizeLabel = fmt.Sprintf("%sx%s (%s)", cssDim(size.Width), cssDim(size.Height), size.Preset)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	pageTemplate.Execute(w, d)
}

func cssPixels(v *int) string {
	if v == nil {
		return "100%"
	}
	return fmt.Sprintf("%dpx", *v)
}

func cssDim(v *int) string {
	if v == nil {
		return "auto"
	}
	return fmt.Sprintf("%d", *v)
}

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>[[.Title]]</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        html, body {
            width: 100%;
            height: 100%;
            background: #0d0d1a;
            color: #ffffff;
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, sans-serif;
            overflow: hidden;
            display: [[.BodyDisplay]];
            justify-content: center;
            align-items: center;
        }
        #surface-container {
            width: [[.Width]];
            height: [[.Height]];
            max-width: [[.MaxWidth]];
            max-height: [[.MaxHeight]];
            background: #1a1a2e;
            position: relative;
            overflow: hidden;
        }
        #surface-root {
            width: 100%;
            height: 100%;
            padding: 32px;
            overflow: auto;
        }
        #status {
            position: absolute;
            top: 16px;
            right: 16px;
            padding: 8px 16px;
            border-radius: 4px;
            font-size: 12px;
            background: rgba(0, 0, 0, 0.5);
            z-index: 1000;
        }
        #status.connected { color: #4ade80; }
        #status.disconnected { color: #f87171; }
        #status.connecting { color: #fbbf24; }
        #size-info {
            position: absolute;
            bottom: 16px;
            left: 16px;
            padding: 4px 8px;
            border-radius: 4px;
            font-size: 10px;
            background: rgba(0, 0, 0, 0.5);
            color: #666;
            z-index: 1000;
        }

        .sc-column { display: flex; flex-direction: column; }
        .sc-row { display: flex; flex-direction: row; }
        .sc-card {
            background: #16213e;
            border-radius: 12px;
            padding: 24px;
            box-shadow: 0 4px 6px rgba(0, 0, 0, 0.3);
        }
        .sc-text { line-height: 1.5; }
        .sc-list { list-style: none; }
        .sc-list-item {
            padding: 12px 0;
            border-bottom: 1px solid rgba(255, 255, 255, 0.1);
        }
        .sc-list-item:last-child { border-bottom: none; }
        .sc-image { max-width: 100%; border-radius: 8px; }
        .sc-divider {
            height: 1px;
            background: rgba(255, 255, 255, 0.2);
            margin: 16px 0;
        }
    </style>
</head>
<body>
    <div id="surface-container">
        <div id="status" class="connecting">Connecting...</div>
        <div id="size-info">[[.SizeLabel]]</div>
        <div id="surface-root"></div>
    </div>

    <script>
        (function() {
            const surfaceId = "[[.SurfaceID]]";
            const wsUrl = window.location.protocol === 'https:'
                ? 'wss://' + window.location.host + '/ws/' + surfaceId
                : 'ws://' + window.location.host + '/ws/' + surfaceId;

            let ws = null;
            let components = {};
            let dataModel = {};
            let closed = false;
            let reconnectAttempts = 0;
            const maxReconnectAttempts = 10;
            const reconnectDelay = 2000;

            const statusEl = document.getElementById('status');
            const rootEl = document.getElementById('surface-root');

            function connect() {
                statusEl.className = 'connecting';
                statusEl.textContent = 'Connecting...';

                ws = new WebSocket(wsUrl);

                ws.onopen = () => {
                    statusEl.className = 'connected';
                    statusEl.textContent = 'Connected';
                    reconnectAttempts = 0;
                };

                ws.onmessage = (event) => {
                    try {
                        handleMessage(JSON.parse(event.data));
                    } catch (e) {
                        console.error('Failed to parse message:', e);
                    }
                };

                ws.onclose = () => {
                    statusEl.className = 'disconnected';
                    statusEl.textContent = 'Disconnected';
                    if (!closed && reconnectAttempts < maxReconnectAttempts) {
                        reconnectAttempts++;
                        setTimeout(connect, reconnectDelay);
                    }
                };

                ws.onerror = (error) => {
                    console.error('WebSocket error:', error);
                };
            }

            function handleMessage(message) {
                switch (message.type) {
                    case 'createSurface':
                        components = {};
                        dataModel = {};
                        break;

                    case 'updateComponents':
                        if (message.components) {
                            components = {};
                            message.components.forEach(comp => {
                                components[comp.id] = comp;
                            });
                            render();
                        }
                        break;

                    case 'updateDataModel':
                        if (message.path && message.value !== undefined) {
                            setValueAtPath(dataModel, message.path, message.value);
                            render();
                        }
                        break;

                    case 'deleteSurface':
                        closed = true;
                        rootEl.innerHTML = '<div style="text-align:center;padding:48px;"><h2>Surface Closed</h2></div>';
                        break;
                }
            }

            function setValueAtPath(obj, path, value) {
                const parts = path.replace(/^\//, '').split('/');
                let current = obj;
                for (let i = 0; i < parts.length - 1; i++) {
                    if (!(parts[i] in current)) {
                        current[parts[i]] = {};
                    }
                    current = current[parts[i]];
                }
                current[parts[parts.length - 1]] = value;
            }

            function render() {
                const root = components['root'];
                if (!root) {
                    return;
                }
                rootEl.innerHTML = '';
                const el = renderComponent(root);
                if (el) {
                    rootEl.appendChild(el);
                }
            }

            function renderComponent(comp) {
                if (!comp) return null;

                const el = document.createElement('div');
                el.className = 'sc-' + comp.component.toLowerCase();
                el.id = 'comp-' + comp.id;

                if (comp.style) {
                    Object.entries(comp.style).forEach(([key, value]) => {
                        el.style[key] = typeof value === 'number' ? value + 'px' : value;
                    });
                }

                switch (comp.component) {
                    case 'Column':
                    case 'Row':
                    case 'Card':
                        appendChildren(el, comp);
                        break;

                    case 'Text':
                        el.textContent = resolveValue(comp.text || '');
                        break;

                    case 'Image': {
                        const img = document.createElement('img');
                        img.src = resolveValue(comp.src || '');
                        img.alt = comp.alt || '';
                        img.className = 'sc-image';
                        el.appendChild(img);
                        break;
                    }

                    case 'List': {
                        const ul = document.createElement('ul');
                        ul.className = 'sc-list';
                        (comp.children || []).forEach(childId => {
                            const li = document.createElement('li');
                            li.className = 'sc-list-item';
                            const childComp = components[childId];
                            if (childComp) {
                                const childEl = renderComponent(childComp);
                                if (childEl) li.appendChild(childEl);
                            }
                            ul.appendChild(li);
                        });
                        el.appendChild(ul);
                        break;
                    }

                    case 'Divider':
                        break;

                    default:
                        appendChildren(el, comp);
                        if (comp.text) {
                            el.textContent = resolveValue(comp.text);
                        }
                }

                return el;
            }

            function appendChildren(el, comp) {
                (comp.children || []).forEach(childId => {
                    const childComp = components[childId];
                    if (childComp) {
                        const childEl = renderComponent(childComp);
                        if (childEl) el.appendChild(childEl);
                    }
                });
            }

            function resolveValue(value) {
                if (typeof value !== 'string') return value;
                return value.replace(/\{\{([^}]+)\}\}/g, (match, path) => {
                    const resolved = getValueAtPath(dataModel, path);
                    return resolved !== undefined ? resolved : match;
                });
            }

            function getValueAtPath(obj, path) {
                const parts = path.replace(/^\//, '').split('/');
                let current = obj;
                for (const part of parts) {
                    if (current === undefined || current === null) return undefined;
                    current = current[part];
                }
                return current;
            }

            connect();
        })();
    </script>
</body>
</html>
`
