package output

import (
	"html/template"
	"net/http"
)

// ViewerHandler serves a page that shows the stream and sends pointer input
// back over a websocket at inputPath. Coordinates are reported in natural
// image pixels, which are mirror pixels.
func (m *MJPEGOutput) ViewerHandler(streamPath, inputPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		viewerTemplate.Execute(w, struct {
			Stream string
			Input  string
		}{streamPath, inputPath})
	}
}

var viewerTemplate = template.Must(template.New("viewer").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Downscaler</title>
    <meta charset="utf-8">
    <style>
        body {
            margin: 0;
            padding: 0;
            background: #000;
            overflow: hidden;
        }
        #stream {
            width: 100vw;
            height: 100vh;
            object-fit: contain;
            display: block;
            cursor: crosshair;
        }
        #status {
            position: fixed;
            top: 8px;
            right: 8px;
            padding: 2px 6px;
            font: 12px monospace;
            color: #ccc;
            background: rgba(0, 0, 0, 0.6);
        }
    </style>
</head>
<body>
    <img id="stream" src="{{.Stream}}" alt="mirror" draggable="false">
    <div id="status">connecting</div>
    <script>
        const img = document.getElementById('stream');
        const status = document.getElementById('status');
        const buttonNames = ['left', 'middle', 'right'];
        let ws;

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
            ws = new WebSocket(proto + '//' + location.host + {{.Input}});
            ws.onopen = () => { status.textContent = 'input live'; };
            ws.onclose = () => {
                status.textContent = 'input offline';
                setTimeout(connect, 2000);
            };
        }

        // Map a client position into natural image pixels, undoing
        // object-fit: contain.
        function toMirror(e) {
            const r = img.getBoundingClientRect();
            if (!img.naturalWidth || !img.naturalHeight) return null;
            const scale = Math.min(r.width / img.naturalWidth, r.height / img.naturalHeight);
            const w = img.naturalWidth * scale;
            const h = img.naturalHeight * scale;
            const ox = r.left + (r.width - w) / 2;
            const oy = r.top + (r.height - h) / 2;
            return {
                x: Math.floor((e.clientX - ox) / scale),
                y: Math.floor((e.clientY - oy) / scale),
            };
        }

        // Same bit values as the server's button mask.
        function buttonMask(e) {
            let mask = 0;
            if (e.buttons & 1) mask |= 0x01;
            if (e.buttons & 2) mask |= 0x02;
            if (e.buttons & 4) mask |= 0x10;
            if (e.shiftKey) mask |= 0x04;
            if (e.ctrlKey) mask |= 0x08;
            return mask;
        }

        function send(e, kind) {
            if (!ws || ws.readyState !== WebSocket.OPEN) return;
            const p = toMirror(e);
            if (!p) return;
            ws.send(JSON.stringify({x: p.x, y: p.y, kind: kind, buttons: buttonMask(e)}));
        }

        img.addEventListener('mousemove', (e) => send(e, 'move'));
        img.addEventListener('mousedown', (e) => {
            const name = buttonNames[e.button];
            if (!name) return;
            e.preventDefault();
            send(e, e.detail === 2 ? name + '_double_click' : name + '_down');
        });
        img.addEventListener('mouseup', (e) => {
            const name = buttonNames[e.button];
            if (name) send(e, name + '_up');
        });
        img.addEventListener('contextmenu', (e) => e.preventDefault());

        connect();
    </script>
</body>
</html>
`))
