package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/chandud1124/aquaguard/internal/sensor"
	"github.com/chandud1124/aquaguard/internal/status"
)

var statusTmpl = template.Must(template.New("status").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
	"yesno": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
	"confidence": func(c sensor.Confidence) string {
		if c == "" {
			return "stale"
		}
		return string(c)
	},
}).Parse(statusHTML))

const statusHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>AquaGuard {{.Config.Role}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.bad { color: red; font-weight: bold; }
.warn { color: orange; }
.panic { background: #fdd; border: 2px solid red; padding: 8px; font-weight: bold; }
</style>
</head>
<body>
<h1>AquaGuard {{.Config.Role}} ({{.DeviceID}})</h1>

{{if .Panic.Active}}<p class="panic">PANIC: {{.Panic.Reason}} since {{stamp .Panic.Since}}</p>{{end}}

<h2>Tank</h2>
<table>
<tr><th>Level</th><td>{{printf "%.1f" .Level.Percentage}}%</td></tr>
<tr><th>Volume</th><td>{{printf "%.0f" .Level.VolumeLiters}} L</td></tr>
<tr><th>Confidence</th><td class="{{if eq (confidence .Level.Confidence) "good"}}on{{else}}warn{{end}}">{{confidence .Level.Confidence}}</td></tr>
<tr><th>Updated</th><td>{{stamp .Level.UpdatedAt}}</td></tr>
</table>

{{if eq .Config.Role "sump"}}
<h2>Motor</h2>
<table>
<tr><th>State</th><td class="{{if .Motor.Running}}on{{else if .Motor.Emergency}}bad{{else}}off{{end}}">{{.Motor.Label}}</td></tr>
<tr><th>Mode</th><td>{{.Motor.Mode}}</td></tr>
{{if .Motor.Running}}<tr><th>Running since</th><td>{{stamp .Motor.Since}}</td></tr>{{end}}
<tr><th>Last stop</th><td>{{stamp .Motor.LastStop}}</td></tr>
<tr><th>Runtime trips</th><td>{{.MotorTrips}}</td></tr>
</table>

<h2>Inputs</h2>
<table>
<tr><th>Float switch</th><td>{{if .Inputs.FloatPresent}}water present{{else}}dry{{end}}</td></tr>
<tr><th>Motor switch</th><td>{{yesno .Inputs.MotorSwitch}}</td></tr>
<tr><th>Mode switch</th><td>{{yesno .Inputs.ModeSwitch}}</td></tr>
<tr><th>Commands pending</th><td>{{.CommandsPending}}</td></tr>
</table>
{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>WiFi</th><td class="{{if .Conn.WifiUp}}on{{else}}bad{{end}}">{{if .Conn.WifiUp}}up {{.Conn.IP}}{{if .Conn.SSID}} ({{.Conn.SSID}} {{.Conn.SignalDBm}} dBm){{end}}{{else}}down{{end}}</td></tr>
<tr><th>Backend</th><td class="{{if .Conn.BackendAvailable}}on{{else}}bad{{end}}">{{if .Conn.BackendAvailable}}available{{else}}unavailable ({{.Conn.HeartbeatMisses}} misses){{end}}</td></tr>
<tr><th>Last backend OK</th><td>{{stamp .Conn.LastOK}}</td></tr>
{{if .Config.PeerURL}}<tr><th>Peer</th><td class="{{if .PeerAvailable}}on{{else}}bad{{end}}">{{if .PeerAvailable}}reachable{{else}}unreachable{{end}}</td></tr>{{end}}
{{if .Config.Broker}}<tr><th>MQTT</th><td class="{{if .MQTTConnected}}on{{else}}bad{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{stamp .StartTime}}</td></tr>
<tr><th>Loop</th><td>{{.Config.LoopMs}}ms</td></tr>
<tr><th>Sensor read</th><td>{{.Config.ReadSeconds}}s</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatSec 0}}disabled{{else}}{{.Config.HeartbeatSec}}s{{end}}</td></tr>
<tr><th>Auto band</th><td>start &lt;{{.Config.AutoStartPct}}% stop &gt;{{.Config.AutoStopPct}}%</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/status.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but the template wants a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	statusTmpl.Execute(w, data)
}
