package api

const relayDocsHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Relay &amp; Events | tabaudio</title>
  <style>
    body {
      margin: 0;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      font-size: 14px;
      line-height: 1.65;
      background: #0d1117;
      color: #c9d1d9;
    }
    a { color: #58a6ff; text-decoration: none; }
    nav {
      background: #161b22;
      border-bottom: 1px solid #30363d;
      padding: 0 24px;
      height: 48px;
      display: flex;
      align-items: center;
      gap: 16px;
    }
    nav .brand { font-weight: 600; color: #e6edf3; }
    main { max-width: 860px; margin: 0 auto; padding: 24px; }
    h2 { color: #e6edf3; border-bottom: 1px solid #30363d; padding-bottom: 6px; }
    code, pre {
      font-family: ui-monospace, SFMono-Regular, Menlo, monospace;
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 6px;
    }
    code { padding: 1px 5px; }
    pre { padding: 12px 16px; overflow-x: auto; }
    table { border-collapse: collapse; width: 100%; }
    td, th { border: 1px solid #30363d; padding: 6px 10px; text-align: left; }
  </style>
</head>
<body>
  <nav>
    <span class="brand">tabaudio</span>
    <a href="/docs">&larr; REST API</a>
  </nav>
  <main>
    <h2>Relay messages</h2>
    <p>The relay answers one JSON message with one JSON response. It is served two ways:</p>
    <table>
      <tr><th>Transport</th><th>Endpoint</th></tr>
      <tr><td>HTTP</td><td><code>POST /api/v1/relay</code></td></tr>
      <tr><td>WebSocket</td><td><code>GET /relay/ws</code>, one text frame per message</td></tr>
    </table>
    <p>Query the audible tabs:</p>
    <pre>&rarr; {"action":"queryTabs","requestId":"optional-id"}
&larr; {"tabs":[{"id":1,"title":"Radio","url":"https://radio.example/","favicon":"..."}],"requestId":"optional-id"}</pre>
    <p>When nothing is playing <code>tabs</code> is an empty array. A request without <code>requestId</code> is assigned one.
    Any other action is answered with <code>{"error":"unknown action"}</code>. A browser that cannot be queried yields an
    <code>error</code> carrying the <code>DIRECTORY_UNAVAILABLE</code> code, never an empty list.</p>

    <h2>Event stream</h2>
    <p><code>GET /api/v1/events</code> is a Server-Sent Events stream of view changes.</p>
    <table>
      <tr><th>Event</th><th>Data</th></tr>
      <tr><td><code>tabs</code></td><td>Full view after a refresh, array of tab views. The latest one is replayed on connect.</td></tr>
      <tr><td><code>tab</code></td><td>One tab view after a confirmed toggle, volume change, seek or state read.</td></tr>
    </table>
    <p>Filter with <code>?events=tab</code>. A comment line is sent every 15 seconds to keep proxies open.</p>
    <pre>curl -N http://127.0.0.1:8190/api/v1/events?events=tabs,tab</pre>
  </main>
</body>
</html>`
