package main

import (
	"crypto/x509/pkix"
	"os"

	"github.com/examproxy/sebproxy/certificate"
	sTLS "github.com/examproxy/sebproxy/common/tls"
	C "github.com/examproxy/sebproxy/constant"
	"github.com/examproxy/sebproxy/log"
	E "github.com/sagernet/sing/common/exceptions"

	"github.com/spf13/cobra"
)

var (
	flagGenerateCAName string
	flagGenerateOutput string
)

var commandGenerateCAKeyPair = &cobra.Command{
	Use:   "ca-keypair",
	Short: "Generate the root certificate authority",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		err := generateCAKeyPair()
		if err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	commandGenerateCAKeyPair.Flags().StringVarP(&flagGenerateCAName, "name", "n", "SEB-MITM-Proxy-CA", "Set CA common name")
	commandGenerateCAKeyPair.Flags().StringVarP(&flagGenerateOutput, "output", "o", C.DefaultCertificateDirectory, "Set output directory")
	commandGenerate.AddCommand(commandGenerateCAKeyPair)
}

func generateCAKeyPair() error {
	keyPair, err := sTLS.GenerateCAKeyPair(nil, pkix.Name{
		CommonName:         flagGenerateCAName,
		Country:            []string{"US"},
		Province:           []string{"California"},
		Locality:           []string{"San Francisco"},
		Organization:       []string{"SEB MITM Proxy"},
		OrganizationalUnit: []string{"Certificate Authority"},
	}, C.RootValidityYears)
	if err != nil {
		return E.Cause(err, "generate root authority")
	}
	err = os.MkdirAll(flagGenerateOutput, 0o755)
	if err != nil {
		return err
	}
	err = certificate.WriteRoot(flagGenerateOutput, keyPair)
	if err != nil {
		return err
	}
	root, err := certificate.LoadRoot(flagGenerateOutput)
	if err != nil {
		return E.Cause(err, "verify written root authority")
	}
	log.Info("root authority written to ", root.CertificatePath, " and ", root.KeyPath)
	log.Info("install ", root.CertificatePath, " as a trusted root on exam clients, or download it from /cert")
	return nil
}
