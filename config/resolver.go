package config

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
)

// ExportPrefix prefixes the names under which already-deployed Bounan
// stacks export their values.
const ExportPrefix = "bounan:"

// The five settings resolved at stack construction time.
const (
	KeyAlertEmail                  = "AlertEmail"
	KeyLoanApiFunctionArn          = "LoanApiFunctionArn"
	KeyGetSeriesToMatchLambdaName  = "GetSeriesToMatchLambdaName"
	KeyUpdateVideoScenesLambdaName = "UpdateVideoScenesLambdaName"
	KeyVideoRegisteredTopicArn     = "VideoRegisteredTopicArn"
)

// ImportValueFunc imports a value exported by another stack.
type ImportValueFunc func(name string) *string

// Resolver resolves a setting from the local configuration when a
// non-empty value exists there, and falls back to a cross-stack import
// named ExportPrefix+key otherwise. A failing import surfaces from the
// CDK at synthesis time; there is no retry and no default.
type Resolver struct {
	local       Source
	importValue ImportValueFunc
}

func NewResolver(local Source) *Resolver {
	return &Resolver{
		local: local,
		importValue: func(name string) *string {
			return awscdk.Fn_ImportValue(jsii.String(name))
		},
	}
}

// NewResolverWithImport injects the import mechanism. Used by tests.
func NewResolverWithImport(local Source, importValue ImportValueFunc) *Resolver {
	return &Resolver{
		local:       local,
		importValue: importValue,
	}
}

// Resolve returns the value for key. Emptiness, not presence, is the
// branch condition: a key mapped to "" imports, a key mapped to " "
// does not.
func (r *Resolver) Resolve(key string) *string {
	if v := r.local.Lookup(key); len(v) > 0 {
		return jsii.String(v)
	}
	return r.importValue(ExportPrefix + key)
}

// Resolved holds the five settings of the matcher stack. Every field
// is non-empty by construction.
type Resolved struct {
	AlertEmail                  *string
	LoanApiFunctionArn          *string
	GetSeriesToMatchLambdaName  *string
	UpdateVideoScenesLambdaName *string
	VideoRegisteredTopicArn     *string
}

// NewResolved resolves each setting exactly once.
func NewResolved(r *Resolver) *Resolved {
	return &Resolved{
		AlertEmail:                  r.Resolve(KeyAlertEmail),
		LoanApiFunctionArn:          r.Resolve(KeyLoanApiFunctionArn),
		GetSeriesToMatchLambdaName:  r.Resolve(KeyGetSeriesToMatchLambdaName),
		UpdateVideoScenesLambdaName: r.Resolve(KeyUpdateVideoScenesLambdaName),
		VideoRegisteredTopicArn:     r.Resolve(KeyVideoRegisteredTopicArn),
	}
}

// String renders the resolved configuration for the stack's Config
// output. CDK tokens inside the fields stay unresolved until deploy.
func (r *Resolved) String() string {
	return fmt.Sprintf(
		"%s=%s %s=%s %s=%s %s=%s %s=%s",
		KeyAlertEmail, *r.AlertEmail,
		KeyLoanApiFunctionArn, *r.LoanApiFunctionArn,
		KeyGetSeriesToMatchLambdaName, *r.GetSeriesToMatchLambdaName,
		KeyUpdateVideoScenesLambdaName, *r.UpdateVideoScenesLambdaName,
		KeyVideoRegisteredTopicArn, *r.VideoRegisteredTopicArn,
	)
}
