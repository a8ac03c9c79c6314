package e2e

import (
	"github.com/cucumber/godog"

	"creditxpress-kyc/e2e/steps/verification"
)

// RegisterSteps registers all step definitions from the step packages.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	verification.RegisterSteps(ctx, tc)
}
