package infomaniak

// pageLayout wraps the callback pages. {{TITLE}}, {{ICON}}, {{ACCENT}} and
// {{BODY}} are replaced before serving; {{BODY}} must already be escaped.
const pageLayout = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{TITLE}} - Infomaniak</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            margin: 0;
            background: #f1f1f1;
            padding: 1rem;
        }
        .container {
            text-align: center;
            background: white;
            padding: 2.5rem;
            border-radius: 12px;
            box-shadow: 0 10px 25px rgba(0,0,0,0.08);
            max-width: 480px;
            width: 100%;
        }
        .icon {
            width: 64px;
            height: 64px;
            margin: 0 auto 1.5rem;
            background: {{ACCENT}};
            border-radius: 50%;
            color: white;
            font-size: 2rem;
            line-height: 64px;
        }
        h1 { color: #333; margin-bottom: 1rem; font-size: 1.5rem; }
        p { color: #666; line-height: 1.5; }
        .countdown { color: #999; font-size: 0.85rem; margin-top: 1.5rem; }
    </style>
</head>
<body>
    <div class="container">
        <div class="icon">{{ICON}}</div>
        <h1>{{TITLE}}</h1>
        {{BODY}}
        <p class="countdown">You can close this window and return to the terminal.</p>
    </div>
</body>
</html>`

// successBody is shown after an authorization code was received.
const successBody = `<p>You are signed in with your Infomaniak account.</p>`

// errorBodyTemplate is shown when the redirect carried no code. {{MESSAGE}} is escaped.
const errorBodyTemplate = `<p>The login did not complete: {{MESSAGE}}</p>
        <p>Run the login command again to retry.</p>`
