package api

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

var uiPage = template.Must(template.New("index").Parse(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>File Processing</title>
  <style>
    body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,Cantarell,Noto Sans,sans-serif;max-width:680px;margin:32px auto;padding:0 16px;color:#0b0b0b;background:#fafafa}
    h1{font-size:22px;margin:0 0 16px}
    .card{background:#fff;border:1px solid #e9e9e9;border-radius:10px;padding:16px;margin:12px 0}
    .btn{display:inline-block;background:#0b63e5;color:#fff;border:none;padding:10px 14px;border-radius:8px;cursor:pointer}
    .muted{color:#666;font-size:13px}
    .mono{font-family:ui-monospace,SFMono-Regular,Menlo,Monaco,Consolas,monospace}
    progress{width:100%;height:18px}
    a{color:#0b63e5;text-decoration:none}
  </style>
</head>
<body>
  <h1>File Processing</h1>
  <div class="card">
    <form id="upload-form">
      <input type="file" name="file" required/>
      <button class="btn" type="submit">Upload</button>
    </form>
    <div class="muted">POST /upload</div>
  </div>
  <div class="card" id="task-card" hidden>
    <div>Task <span class="mono" id="task-id"></span></div>
    <progress id="task-progress" max="100" value="0"></progress>
    <div id="task-status" class="muted"></div>
    <div id="task-download" hidden><a id="download-link" href="#">Download result</a></div>
  </div>
  <script>
    const form = document.getElementById('upload-form');
    form.addEventListener('submit', async (e) => {
      e.preventDefault();
      const resp = await fetch('/upload', {method: 'POST', body: new FormData(form)});
      if (!resp.ok) { alert('upload failed'); return; }
      const body = await resp.json();
      document.getElementById('task-card').hidden = false;
      document.getElementById('task-id').textContent = body.task_id;
      poll(body.task_id);
    });
    async function poll(id) {
      const resp = await fetch('/status/' + id);
      if (!resp.ok) { return; }
      const st = await resp.json();
      document.getElementById('task-progress').value = st.progress;
      document.getElementById('task-status').textContent = st.status + (st.error_message ? ': ' + st.error_message : '');
      if (st.status === 'complete') {
        const dl = document.getElementById('task-download');
        dl.hidden = false;
        document.getElementById('download-link').href = '/download/' + id;
        return;
      }
      if (st.status !== 'error') { setTimeout(() => poll(id), 1000); }
    }
  </script>
</body>
</html>`))

// RegisterUIRoutes serves the minimal upload/poll page at the root.
func (a *API) RegisterUIRoutes(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
		c.Header("Content-Type", "text/html; charset=utf-8")
		_ = uiPage.Execute(c.Writer, nil)
	})
}
