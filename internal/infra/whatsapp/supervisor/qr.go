package supervisor

import (
	"fmt"
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"github.com/skip2/go-qrcode"
	"github.com/vincent-petithory/dataurl"
)

// qrImageSize é o lado em pixels do PNG servido pela API
const qrImageSize = 300

// renderQRDataURL converte o código de pareamento em um PNG embutido
// em data URL, pronto para cair em um <img>
func renderQRDataURL(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	return dataurl.New(png, "image/png").String(), nil
}

// printConsoleQR desenha o QR code no terminal para desenvolvimento local
func printConsoleQR(code string) {
	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("📱 Escaneie o QR Code abaixo com o WhatsApp")
	fmt.Println(strings.Repeat("=", 50))

	qrterminal.GenerateHalfBlock(code, qrterminal.L, os.Stdout)

	fmt.Println(strings.Repeat("=", 50) + "\n")
}
