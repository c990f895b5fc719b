package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# memwatch configuration

[data]
# Directory holding prices.json / prices.db, the run lock and logs.
# dir = "~/.config/memwatch/data"

[storage]
# History store backend: "json" or "sqlite"
backend = "json"

[tracker]
# Where per-run price changes come from:
#   "snapshot" - trust the change reported by the price page
#   "history"  - recompute against the last recorded prices
delta_strategy = "snapshot"

[source]
# Per-request timeout
timeout = "10s"
# Attempts per page before giving up
max_retries = 3
# Fall back to the last known good prices when the page is unreachable
fallback = true
# Pages fetched in parallel
concurrency = 2

[[source.pages]]
category = "DDR Memory (Channel Market)"
url = "https://www.chinaflashmarket.com/pricecenter/ddrchannel"

[notifications]
# Notification level: all, reports_only, errors_only
level = "all"

[notifications.email]
# SMTP_SERVER, SMTP_PORT, SMTP_EMAIL, SMTP_PASSWORD and RECIPIENT_EMAIL
# override the values below.
enabled = true
smtp_host = "smtp.qq.com"
smtp_port = 465
username = ""
password = ""
from = ""
to = ""

[notifications.webhook]
enabled = false
url = ""

[notifications.telegram]
enabled = false
bot_token = ""
chat_id = ""

[logging]
level = "info"
file = true
max_size = 20
max_backups = 5
max_age = 90

[metrics]
# Prometheus textfile collector output; empty disables export.
textfile = ""

[ui]
color_enabled = true
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	// Restricted permissions: the file may hold SMTP credentials.
	if err := os.WriteFile(path, []byte(configTemplate), 0600); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
