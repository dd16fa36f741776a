package harness

import (
	_ "embed"
)

//go:embed templates/subject.py.tmpl
var subjectTemplateSource string

//go:embed templates/driver.py.tmpl
var driverTemplateSource string

//go:embed templates/whitelist_probe.py.tmpl
var whitelistProbeTemplateSource string
