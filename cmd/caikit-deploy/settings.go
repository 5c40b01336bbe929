package main

import (
	"flag"
	"strings"

	"github.com/davidmdm/conf"

	"github.com/caikit/caikit-embeddings-deploy/internal/home"
	"github.com/caikit/caikit-embeddings-deploy/internal/k8s"
)

type GlobalSettings struct {
	KubeConfigPath string
	StateNamespace string
	Debug          bool
}

// GlobalSettingsFromEnv returns the defaults of the global flags.
func GlobalSettingsFromEnv() (settings GlobalSettings, err error) {
	conf.Var(conf.Environ, &settings.KubeConfigPath, "KUBECONFIG", conf.Default[string](home.Kubeconfig))
	conf.Var(conf.Environ, &settings.StateNamespace, "CAIKIT_DEPLOY_STATE_NAMESPACE", conf.Default[string](k8s.DefaultStateNamespace))
	conf.Var(conf.Environ, &settings.Debug, "CAIKIT_DEPLOY_DEBUG")
	err = conf.Environ.Parse()
	return
}

func RegisterGlobalFlags(flagset *flag.FlagSet, settings *GlobalSettings) {
	flagset.StringVar(&settings.KubeConfigPath, "kubeconfig", settings.KubeConfigPath, "path to kube config")
	flagset.StringVar(&settings.StateNamespace, "state-namespace", settings.StateNamespace, "namespace holding release history and resource ownership")
	flagset.BoolVar(&settings.Debug, "debug", settings.Debug, "print timings and progress to stderr")
}

// Strings is a flag that can be repeated, accumulating its values in order.
type Strings []string

func (values *Strings) String() string { return strings.Join(*values, ",") }

func (values *Strings) Set(value string) error {
	*values = append(*values, value)
	return nil
}
