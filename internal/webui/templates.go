package webui

const indexTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Pure64 image</title>
<style>
body { font-family: sans-serif; max-width: 48em; margin: 2em auto; padding: 0 1em; }
table { border-collapse: collapse; width: 100%; }
td, th { text-align: left; padding: 0.25em 0.5em; border-bottom: 1px solid #ddd; }
#status { margin-top: 1em; }
</style>
</head>
<body>
<h1>Pure64 image</h1>

<form id="upload">
  <input type="file" name="file" required>
  <button type="submit">Upload</button>
  <button type="button" id="clear">Clear image</button>
</form>
<div id="status"></div>

<h2>/</h2>
<table>
<tr><th>Name</th><th>Type</th><th>Size</th></tr>
{{range .Entries}}<tr><td>{{.Name}}</td><td>{{if .IsDir}}dir{{else}}file{{end}}</td><td>{{if not .IsDir}}{{.Size}}{{end}}</td></tr>
{{else}}<tr><td colspan="3">empty</td></tr>
{{end}}</table>

<script>
const status = document.getElementById("status");
document.getElementById("upload").addEventListener("submit", async (e) => {
  e.preventDefault();
  status.textContent = "Uploading...";
  const resp = await fetch("/api/upload?dir=/", { method: "POST", body: new FormData(e.target) });
  const body = await resp.json().catch(() => ({}));
  if (resp.ok) {
    location.reload();
  } else {
    status.textContent = "Upload failed: " + (body.error || resp.statusText);
  }
});
document.getElementById("clear").addEventListener("click", async () => {
  if (!confirm("Remove every file from the image?")) return;
  const resp = await fetch("/api/clear", { method: "POST" });
  if (resp.ok) location.reload();
  else status.textContent = "Clear failed: " + resp.statusText;
});
</script>
</body>
</html>
`
