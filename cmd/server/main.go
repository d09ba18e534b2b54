package main

import (
	"fmt"
	"os"

	"taskhub/internal/app"
)

// @title                       TaskHub API
// @version                     1.0
// @description                 Accounts, email verification and password reset for TaskHub.
// @BasePath                    /api-v1
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "taskhub: %v\n", err)
		os.Exit(1)
	}
}
