package config

import "strings"

// AppVersion is the version of the service.
var AppVersion = "dev" // Overridden with -ldflags "-X github.com/dixieflatline76/facecrop/config.AppVersion=..."

// AppName is the name of the service.
const AppName = "facecrop"

// LogWinSubDir is the sub directory for the log files on windows.
var LogWinSubDir = AppName

// LogSubDir is the sub directory for the log files.
var LogSubDir = "." + strings.ToLower(AppName)

// LogExt is the extension for the log files.
var LogExt = ".log"

// ModelFileName is the cascade file looked for in the config directory when no model path is set.
const ModelFileName = "facefinder"
