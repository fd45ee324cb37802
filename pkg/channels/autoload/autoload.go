// Package autoload registers every built-in channel factory.
package autoload

import (
	_ "chatagent/pkg/channels/telegram" // "telegram"
	_ "chatagent/pkg/channels/web"      // "web"
)
