package router

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/HatiCode/rewardboard/pkg/httpx"
	"github.com/HatiCode/rewardboard/pkg/view"
)

// rules is the static rules panel.
var rules = []string{
	"Two paddles, one ball. The agent controls the right paddle.",
	"A point is scored when the ball passes the opponent's paddle.",
	"A game ends when either side reaches 21 points.",
	"The episode reward is the agent's points minus the opponent's.",
	"Rewards range from -21 (lost every point) to +21 (won every point).",
	"The chart plots the windowed average return against environment steps.",
}

type pageData struct {
	Model      view.Model
	ModelAsset string
	Rules      []string
}

var pageTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Reward Board</title>
<script type="module" src="https://ajax.googleapis.com/ajax/libs/model-viewer/3.5.0/model-viewer.min.js"></script>
<style>
  :root { --bg: #111418; --panel: #1a1f26; --border: #2c333d; --text: #d6dbe1; --muted: #8a939e; --accent: #1f77b4; }
  body { margin: 0; font-family: system-ui, sans-serif; background: var(--bg); color: var(--text); }
  header { padding: 16px 24px; border-bottom: 1px solid var(--border); }
  main { display: grid; grid-template-columns: 2fr 1fr; gap: 16px; padding: 16px 24px; }
  section { background: var(--panel); border: 1px solid var(--border); border-radius: 6px; padding: 12px 16px; }
  .stats { display: flex; gap: 24px; }
  .stat b { display: block; font-size: 1.4em; }
  .stat span { color: var(--muted); font-size: .85em; }
  table { width: 100%; border-collapse: collapse; }
  th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid var(--border); }
  tr.selected td { color: #fff; background: #22303f; }
  button { background: none; border: 1px solid var(--border); color: var(--text); border-radius: 4px; cursor: pointer; }
  img.chart { width: 100%; height: auto; }
  model-viewer { width: 100%; height: 320px; background: #0c0f12; }
  ul.rules { color: var(--muted); padding-left: 18px; }
</style>
</head>
<body>
<header><h1>Reward Board</h1></header>
<main>
  <div>
    <section>
      <div class="stats" id="live">
        <div class="stat"><b id="live-best">{{.Model.Live.BestReward}}</b><span>best reward</span></div>
        <div class="stat"><b id="live-episode">{{.Model.Live.BestEpisode}}</b><span>best episode</span></div>
        <div class="stat"><b id="live-steps">{{.Model.Live.BestSteps}}</b><span>steps</span></div>
        <div class="stat"><b id="live-last">{{.Model.Live.Last}}</b><span>last return</span></div>
        <div class="stat"><b id="live-elapsed">{{.Model.Live.Elapsed}}</b><span>elapsed</span></div>
      </div>
    </section>
    <section>
      <img class="chart" id="chart" src="/chart.svg" alt="reward over steps">
    </section>
    <section>
      <table>
        <thead><tr><th></th><th>Run</th><th>Model</th><th>Best reward</th><th>Last avg return</th><th>Elapsed</th></tr></thead>
        <tbody id="runs">
        {{range .Model.Rows}}
          <tr{{if .Selected}} class="selected"{{end}}>
            <td><form method="post" action="/api/runs/{{.Run}}/toggle"><button type="submit">{{if .Selected}}hide{{else}}plot{{end}}</button></form></td>
            <td>{{.Run}}</td><td>{{.Model}}</td><td>{{.BestReward}}</td><td>{{.LastAvgReturn}}</td><td>{{.Elapsed}}</td>
          </tr>
        {{else}}
          <tr><td colspan="6">No runs yet.</td></tr>
        {{end}}
        </tbody>
      </table>
      <form method="post" action="/api/show-all" id="show-hide"{{if not .Model.ShowHide}} hidden{{end}}>
        <button type="submit" id="show-hide-label">{{with .Model.ShowHide}}{{.Label}}{{end}}</button>
      </form>
    </section>
  </div>
  <div>
    <section>
      <model-viewer src="{{.ModelAsset}}" alt="agent" camera-controls disable-pan disable-zoom
        camera-orbit="0deg 75deg auto" min-camera-orbit="-60deg 75deg auto" max-camera-orbit="60deg 75deg auto"
        environment-image="neutral" shadow-intensity="1" exposure="1"></model-viewer>
    </section>
    <section>
      <h3>Rules</h3>
      <ul class="rules">{{range .Rules}}<li>{{.}}</li>{{end}}</ul>
    </section>
  </div>
</main>
<script>
(function () {
  function text(id, v) { var el = document.getElementById(id); if (el) el.textContent = v; }
  function render(m) {
    text("live-best", m.live.best_reward);
    text("live-episode", m.live.best_episode);
    text("live-steps", m.live.best_steps);
    text("live-last", m.live.last);
    text("live-elapsed", m.live.elapsed);
    document.getElementById("chart").src = "/chart.svg?t=" + Date.now();
    var body = document.getElementById("runs");
    body.replaceChildren();
    m.rows.forEach(function (r) {
      var tr = document.createElement("tr");
      if (r.selected) tr.className = "selected";
      var form = document.createElement("form");
      form.method = "post";
      form.action = "/api/runs/" + encodeURIComponent(r.run) + "/toggle";
      var btn = document.createElement("button");
      btn.type = "submit";
      btn.textContent = r.selected ? "hide" : "plot";
      form.appendChild(btn);
      var td = document.createElement("td");
      td.appendChild(form);
      tr.appendChild(td);
      [r.run, r.model, r.best_reward, r.last_avg_return, r.elapsed].forEach(function (v) {
        var c = document.createElement("td");
        c.textContent = v;
        tr.appendChild(c);
      });
      body.appendChild(tr);
    });
    var sh = document.getElementById("show-hide");
    sh.hidden = !m.show_hide;
    if (m.show_hide) text("show-hide-label", m.show_hide.label);
  }
  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onmessage = function (ev) { render(JSON.parse(ev.data)); };
    ws.onclose = function () { setTimeout(connect, 2000); };
  }
  connect();
})();
</script>
</body>
</html>
`))

func (h *handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	v := h.session(w, r)
	if v == nil {
		return
	}

	data := pageData{
		Model:      v.Model(r.Context()),
		ModelAsset: h.modelAsset,
		Rules:      rules,
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		h.logger.Error("failed to render page", "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Debug("failed to write page", "error", err)
	}
}
