package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ ConfigProvider  = (*CfgxConfigProvider)(nil)
	_ RawConfigLoader = (*EnvRawConfigLoader)(nil)
	_ OptionsResolver = GoOptionsResolver{}
	_ ViewInvalidator = NopViewInvalidator{}
	_ NameSanitizer   = trimSanitizer{}
	_ MetricsRecorder = NopMetricsRecorder{}
	_ error           = (*Failure)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
