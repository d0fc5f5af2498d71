package modules

import (
	"github.com/k4lantar4/remnabot/modules/bots"
	"github.com/k4lantar4/remnabot/pkg/application"
)

var BuiltInModules = []application.Module{
	bots.NewModule(),
}

func Load(app application.Application, mods ...application.Module) error {
	for _, module := range mods {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}
