package utils

import (
	"log"

	"github.com/rollbar/rollbar-go"
)

var rollbarEnabled bool

// InitMonitoring enables Rollbar reporting when a token is configured.
func InitMonitoring(token, env, codeVersion string) {
	if token == "" {
		log.Println("[MONITORING] Rollbar token not set, errors are only logged")
		return
	}
	rollbar.SetToken(token)
	rollbar.SetEnvironment(env)
	rollbar.SetCodeVersion(codeVersion)
	rollbarEnabled = true
	log.Println("[MONITORING] Rollbar reporting enabled")
}

// ReportError logs err with its context and forwards it to Rollbar.
func ReportError(area string, err error, extras map[string]interface{}) {
	if err == nil {
		return
	}
	log.Printf("[%s] %v %v", area, err, extras)
	if rollbarEnabled {
		rollbar.Error(err, extras)
	}
}

// ReportWarning is for conditions worth monitoring that are not errors,
// such as settlement notifications for unknown orders.
func ReportWarning(area, msg string, extras map[string]interface{}) {
	log.Printf("[%s] %s %v", area, msg, extras)
	if rollbarEnabled {
		rollbar.Warning(msg, extras)
	}
}

// FlushMonitoring waits for queued reports to be sent.
func FlushMonitoring() {
	if rollbarEnabled {
		rollbar.Wait()
	}
}
