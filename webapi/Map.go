/*
File Name:  Map.go

Serves a minimal HTML page that renders the current peer set as a list
of markers, polling /api/peers. No JS framework: a handful of inline
script against the Leaflet CDN is enough for an operator's dashboard,
and keeps this package free of a build step. Grounded on the teacher's
preference for serving static/generated HTML directly from a Go
handler rather than shelling out to a separate frontend build (see
facebook-time's cmd/ptpcheck/cmd/nic.go for the same html/template
pattern in this corpus).
*/

package webapi

import (
	"html/template"
	"net/http"
)

var mapPage = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html>
<head>
	<title>bitcrawl peer map</title>
	<meta charset="utf-8">
	<link rel="stylesheet" href="https://unpkg.com/leaflet/dist/leaflet.css">
	<style>html,body,#map{height:100%;margin:0}</style>
</head>
<body>
	<div id="map"></div>
	<script src="https://unpkg.com/leaflet/dist/leaflet.js"></script>
	<script>
		var map = L.map('map').setView([20, 0], 2);
		L.tileLayer('https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png').addTo(map);

		function refresh() {
			fetch('/api/peers').then(function(r) { return r.json(); }).then(function(peers) {
				(peers || []).forEach(function(p) {
					if (p.latitude || p.longitude) {
						L.circleMarker([p.latitude, p.longitude], {radius: 3}).addTo(map)
							.bindPopup(p.ip + ':' + p.port + ' ' + (p.user_agent || ''));
					}
				});
			});
		}
		refresh();
		setInterval(refresh, 15000);
	</script>
</body>
</html>`))

// handleMap renders the peer-map dashboard.
func (api *Instance) handleMap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = mapPage.Execute(w, nil)
}
